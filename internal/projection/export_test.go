package projection

var ParseDSN = parseDSN
