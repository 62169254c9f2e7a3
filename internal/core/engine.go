package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CfdLedger/internal/address"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/observability"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

// PriceSource selects the price record the market reads.
type PriceSource string

const (
	PriceSourceMock       PriceSource = "mock"
	PriceSourceAggregator PriceSource = "aggregator"
)

// Config holds the deterministic parameters of the core. Two cores with the
// same Config and command log reach the same state hash.
type Config struct {
	// Program is the id every record key is derived under.
	Program address.Address

	// Operator may credit deposits and settle the market.
	Operator address.Address

	PriceSource PriceSource
	PriceSymbol string
	PriceClass  oracle.AssetClass

	IdempotencyCapacity int

	// GlobalCheckInterval is how often, in sequences, the zero-sum
	// invariant is checked over every account.
	GlobalCheckInterval int64

	// Handlers apply executed governance proposals.
	Handlers governance.Handlers
}

func DefaultConfig() Config {
	return Config{
		Program:             address.FromSeed("cfd-clearing"),
		PriceSource:         PriceSourceMock,
		PriceSymbol:         "BTC",
		PriceClass:          oracle.AssetClassCrypto,
		IdempotencyCapacity: 1_000_000,
		GlobalCheckInterval: 1000,
	}
}

// Deps are the collaborators of the core. Every field is optional except
// Clock.
type Deps struct {
	Clock          Clock
	PersistChan    chan<- CoreOutput
	ProjectionChan chan<- CoreOutput
	DBChecker      DBIdempotencyChecker
	Metrics        *observability.Metrics
	Logger         *zerolog.Logger
}

// CoreOutput is everything a committed command produced.
type CoreOutput struct {
	Envelope *event.Envelope
	Batch    *ledger.Batch // nil when no value moved
	Changes  []store.Change
	Output   any // handler result, as returned to the submitter
	Emitted  time.Time
}

// Result is returned to the submitter of a command.
type Result struct {
	Sequence  int64    `json:"sequence,omitempty"`
	Height    uint64   `json:"height"`
	StateHash [32]byte `json:"-"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Stale     bool     `json:"stale,omitempty"`
	Output    any      `json:"output,omitempty"`
}

type request struct {
	ctx      context.Context
	cmd      event.Command
	fn       func() // control operation run on the core goroutine instead of cmd
	received time.Time
	reply    chan response
}

type response struct {
	res Result
	err error
}

// DeterministicCore executes commands one at a time over the balance
// tracker and the record store.
type DeterministicCore struct {
	cfg   Config
	keys  address.Deriver
	clock Clock
	codec *store.Codec

	// mu orders commits against readers so a query never sees balances
	// and records from different sequences.
	mu sync.RWMutex

	sequence       int64 // next sequence to assign
	lastHeight     uint64
	hasher         *StateHasher
	balanceTracker *ledger.BalanceTracker
	records        *store.Store
	validator      *ledger.InvariantValidator
	idempotency    *IdempotencyChecker
	prices         *PriceSequencer
	metrics        *observability.Metrics
	log            zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	requests       chan request
	replaying      bool
}

func NewDeterministicCore(cfg Config, deps Deps) *DeterministicCore {
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = DefaultConfig().IdempotencyCapacity
	}
	if cfg.GlobalCheckInterval <= 0 {
		cfg.GlobalCheckInterval = DefaultConfig().GlobalCheckInterval
	}
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = *deps.Logger
	}

	balanceTracker := ledger.NewBalanceTracker()
	return &DeterministicCore{
		cfg:            cfg,
		keys:           address.NewDeriver(cfg.Program),
		clock:          deps.Clock,
		codec:          NewRecordCodec(),
		sequence:       1,
		hasher:         NewStateHasher(),
		balanceTracker: balanceTracker,
		records:        store.New(),
		validator:      ledger.NewInvariantValidator(balanceTracker),
		idempotency:    NewIdempotencyChecker(cfg.IdempotencyCapacity, deps.DBChecker, deps.Metrics),
		prices:         NewPriceSequencer(deps.Metrics),
		metrics:        deps.Metrics,
		log:            log,
		persistChan:    deps.PersistChan,
		projectionChan: deps.ProjectionChan,
		requests:       make(chan request),
	}
}

// Run serves Submit callers until ctx is done. Exactly one goroutine may
// run it.
func (c *DeterministicCore) Run(ctx context.Context) {
	c.log.Info().Int64("next_seq", c.sequence).Msg("core started")
	defer c.log.Info().Int64("next_seq", c.sequence).Msg("core stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			if req.fn != nil {
				req.fn()
				req.reply <- response{}
				continue
			}
			res, err := c.ProcessCommand(req.ctx, req.cmd)
			if c.metrics != nil && err == nil && !res.Duplicate && !res.Stale {
				c.metrics.IngestToApply.WithLabelValues(string(req.cmd.Type())).
					Observe(time.Since(req.received).Seconds())
			}
			req.reply <- response{res: res, err: err}
		}
	}
}

// Submit hands cmd to the core goroutine and waits for its result. A
// command already handed over runs to completion even if ctx ends first.
func (c *DeterministicCore) Submit(ctx context.Context, cmd event.Command) (Result, error) {
	req := request{ctx: ctx, cmd: cmd, received: time.Now(), reply: make(chan response, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Do runs fn on the core goroutine between commands and waits for it.
func (c *DeterministicCore) Do(ctx context.Context, fn func()) error {
	req := request{ctx: ctx, fn: fn, received: time.Now(), reply: make(chan response, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessCommand is the processing pipeline. It must only be called from
// one goroutine at a time; Run does that for Submit callers.
func (c *DeterministicCore) ProcessCommand(ctx context.Context, cmd event.Command) (Result, error) {
	start := time.Now()
	commandType := string(cmd.Type())
	key := event.IdempotencyKey(cmd)

	// Step 1: Idempotency check (two-tier)
	dup, err := c.idempotency.IsDuplicate(ctx, commandType, key)
	if err != nil {
		c.log.Warn().Err(err).Str("command", commandType).Msg("idempotency lookup failed")
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if dup {
		c.rejected(commandType, "duplicate")
		return Result{Duplicate: true}, nil
	}

	// Step 2: Height is read once per command
	height := c.clock.CurrentHeight()
	if height < c.lastHeight {
		height = c.lastHeight
	}

	res, err := c.apply(cmd, key, height, nil)
	if err != nil || res.Stale {
		return res, err
	}

	if c.metrics != nil {
		c.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		c.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
	}
	return res, nil
}

// ErrReplayDiverged reports that a replayed command did not reproduce the
// logged state hash.
var ErrReplayDiverged = errors.New("replay diverged from event log")

// ReplayEnvelope re-executes a logged command at its logged height and
// verifies the resulting state hash. Outputs are not re-emitted.
func (c *DeterministicCore) ReplayEnvelope(env *event.Envelope) error {
	cmd, err := env.Decode()
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	c.replaying = true
	defer func() { c.replaying = false }()

	res, err := c.apply(cmd, env.IdempotencyKey, env.Height, env)
	if err != nil {
		return fmt.Errorf("replay seq %d (%s): %w", env.Sequence, env.CommandType, err)
	}
	if res.Stale {
		return fmt.Errorf("replay seq %d: logged price update is stale: %w", env.Sequence, ErrReplayDiverged)
	}
	if res.StateHash != env.StateHash {
		return fmt.Errorf("replay seq %d: hash %x, logged %x: %w", env.Sequence, res.StateHash, env.StateHash, ErrReplayDiverged)
	}
	if c.metrics != nil {
		c.metrics.ReplayEventsTotal.Inc()
	}
	return nil
}

func (c *DeterministicCore) apply(cmd event.Command, key string, height uint64, logged *event.Envelope) (Result, error) {
	commandType := cmd.Type()

	// Step 3: Price sequence guard
	partition, priceSeq, sequenced := PricePartition(cmd)
	if sequenced && c.prices.Stale(partition, priceSeq) {
		c.rejected(string(commandType), "stale_price")
		c.log.Debug().
			Str("command", string(commandType)).
			Str("partition", partition).
			Uint64("price_sequence", priceSeq).
			Msg("stale price update skipped")
		return Result{Height: height, Stale: true}, nil
	}

	if logged != nil && logged.Sequence != c.sequence {
		return Result{}, fmt.Errorf("logged sequence %d, core expects %d: %w", logged.Sequence, c.sequence, ErrReplayDiverged)
	}

	payload, err := event.Encode(cmd)
	if err != nil {
		return Result{}, err
	}

	// Step 4: Execute against staged views
	lt := c.balanceTracker.Begin(key, height)
	rt := c.records.Begin()
	x := &execution{
		core:    c,
		ledger:  lt,
		records: rt,
		height:  height,
		signer:  cmd.Header().Signer,
	}
	out, err := c.dispatch(x, cmd)
	if err != nil {
		c.rejected(string(commandType), fault.KindOf(err).String())
		c.log.Debug().
			Err(err).
			Str("command", string(commandType)).
			Str("fault_kind", fault.KindOf(err).String()).
			Uint64("height", height).
			Msg("command rejected")
		return Result{Height: height}, err
	}

	// Step 5: Seal and validate the batch
	seq := c.sequence
	batch := lt.Batch(seq)
	if batch != nil {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: malformed batch at seq %d: %v", seq, err))
		}
	}
	changes := rt.Changes()

	// Step 6: Commit balances and records together
	c.mu.Lock()
	if batch != nil {
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			c.mu.Unlock()
			panic(fmt.Sprintf("FATAL: apply batch at seq %d: %v", seq, err))
		}
	}
	c.records.Apply(changes)

	hashStart := time.Now()
	digest := c.computeStateDigest(lt.Touched(), changes)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(seq, digest)
	c.sequence++
	c.lastHeight = height
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	// Step 7: Post-checks
	if err := c.postCheckInvariants(seq, batch); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at seq %d: %v", seq, err))
	}

	if sequenced {
		c.prices.Accept(partition, priceSeq)
	}
	c.idempotency.MarkProcessed(key)

	envelope := &event.Envelope{
		Sequence:       seq,
		IdempotencyKey: key,
		CommandType:    commandType,
		Signer:         cmd.Header().Signer,
		Height:         height,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	// Step 8: Emit outputs
	if !c.replaying {
		c.emit(CoreOutput{Envelope: envelope, Batch: batch, Changes: changes, Output: out, Emitted: time.Now()})
	}
	c.recordCommit(batch, changes, seq, height)

	c.log.Debug().
		Int64("seq", seq).
		Str("command", string(commandType)).
		Uint64("height", height).
		Msg("command applied")

	return Result{Sequence: seq, Height: height, StateHash: stateHash, Output: out}, nil
}

func (c *DeterministicCore) emit(output CoreOutput) {
	// Persistence: blocking send. The core stalls until the persistence
	// worker drains, so no committed command is lost.
	if c.persistChan != nil {
		select {
		case c.persistChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persistChan <- output
		}
	}

	// Projections: non-blocking send, dropped on full. Sinks rebuild from
	// the event log if they fall behind.
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("fanout").Inc()
			}
		}
	}
}

func (c *DeterministicCore) rejected(commandType, reason string) {
	if c.metrics != nil {
		c.metrics.CoreCommandsRejected.WithLabelValues(commandType, reason).Inc()
	}
}

func (c *DeterministicCore) recordCommit(batch *ledger.Batch, changes []store.Change, seq int64, height uint64) {
	if c.metrics == nil {
		return
	}
	if batch != nil {
		for _, j := range batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	for _, ch := range changes {
		kind := "deleted"
		if !ch.Deleted {
			kind = ch.Record.Kind()
		}
		c.metrics.CoreRecordWrites.WithLabelValues(kind).Inc()
	}
	c.metrics.CoreSequence.Set(float64(seq))
	c.metrics.CoreHeight.Set(float64(height))
}

// computeStateDigest creates canonical bytes for the state hash: touched
// balances by account path, then written records by key.
func (c *DeterministicCore) computeStateDigest(touched []ledger.AccountKey, changes []store.Change) []byte {
	sort.Slice(touched, func(i, j int) bool {
		return touched[i].AccountPath() < touched[j].AccountPath()
	})

	digest := make([]byte, 0, len(touched)*64+len(changes)*256)

	for _, key := range touched {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	for _, ch := range changes {
		digest = append(digest, ch.Key[:]...)
		if ch.Deleted {
			digest = append(digest, 0)
			continue
		}
		data, err := c.codec.Encode(ch.Record)
		if err != nil {
			panic(fmt.Sprintf("FATAL: encode %s record: %v", ch.Record.Kind(), err))
		}
		kind := ch.Record.Kind()
		digest = append(digest, 1, byte(len(kind)))
		digest = append(digest, []byte(kind)...)
		digest = appendInt64LE(digest, int64(len(data)))
		digest = append(digest, data...)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after a commit
func (c *DeterministicCore) postCheckInvariants(seq int64, batch *ledger.Batch) error {
	if batch != nil {
		if err := c.validator.ValidateTouchedNonNegative(batch); err != nil {
			return err
		}
	}
	if seq%c.cfg.GlobalCheckInterval == 0 {
		return c.validator.ValidateGlobalBalance()
	}
	return nil
}

// View runs fn with a consistent read view of balances and records.
func (c *DeterministicCore) View(fn func(records *store.Store, balances *ledger.BalanceTracker)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.records, c.balanceTracker)
}

// ViewAsOf is View with the sequence of the last commit visible in the
// view.
func (c *DeterministicCore) ViewAsOf(fn func(seq int64, records *store.Store, balances *ledger.BalanceTracker)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.sequence-1, c.records, c.balanceTracker)
}

// Keys returns the record key deriver.
func (c *DeterministicCore) Keys() address.Deriver { return c.keys }

// Codec returns the record codec.
func (c *DeterministicCore) Codec() *store.Codec { return c.codec }

// GetSequence returns the last committed sequence.
func (c *DeterministicCore) GetSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence - 1
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.GetPrevHash()
}

// Tip returns the last committed sequence, its state hash and height
// together.
func (c *DeterministicCore) Tip() (int64, [32]byte, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence - 1, c.hasher.GetPrevHash(), c.lastHeight
}

// LastHeight returns the height of the last committed command.
func (c *DeterministicCore) LastHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeight
}
