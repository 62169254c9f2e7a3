package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CfdLedger.
type Metrics struct {
	// --- Core Processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreJournals         *prometheus.CounterVec
	CoreRecordWrites     *prometheus.CounterVec
	CoreStateHashDur     prometheus.Histogram
	CoreSequence         prometheus.Gauge
	CoreHeight           prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	ApplyToPersist      prometheus.Histogram
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	StalePriceUpdates     *prometheus.CounterVec
	PriceSequenceGaps     *prometheus.CounterVec

	// --- Market ---
	PositionsOpened     *prometheus.CounterVec
	Liquidations        prometheus.Counter
	LiquidationBonus    prometheus.Counter
	SettlementPayouts   *prometheus.CounterVec
	MarketSettlements   prometheus.Counter
	HeatmapSpreadBps    prometheus.Gauge
	OracleDeviation     *prometheus.CounterVec
	OracleStaleFlagged  prometheus.Counter
	OracleFeedSpreadBps *prometheus.GaugeVec

	// --- AMM ---
	SwapVolume       *prometheus.CounterVec
	SwapFees         *prometheus.CounterVec
	LiquidityAdded   *prometheus.CounterVec
	SlotPoolsCreated prometheus.Counter

	// --- Governance ---
	ProposalsCreated   *prometheus.CounterVec
	ProposalsFinalized *prometheus.CounterVec
	VotesCast          *prometheus.CounterVec
	FeesClaimed        prometheus.Counter
	TokensBoughtBack   prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistRecordsWritten  prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Ingestion & Stream ---
	IngestMessages *prometheus.CounterVec
	RateLimited    *prometheus.CounterVec
	StreamClients  prometheus.Gauge
	StreamDrops    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreCommandsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_core_commands_applied_total",
			Help: "Commands committed by core",
		}, []string{"command"}),

		CoreCommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_core_commands_rejected_total",
			Help: "Commands rejected (duplicate, stale price, fault kind)",
		}, []string{"command", "reason"}),

		CoreCommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfd_core_command_apply_duration_seconds",
			Help:    "Time to execute and commit a single command",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreRecordWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_core_record_writes_total",
			Help: "Record puts and deletes committed",
		}, []string{"kind"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_core_sequence",
			Help: "Current global sequence number",
		}),

		CoreHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_core_height",
			Help: "Height of the last executed command",
		}),

		// Latency
		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfd_ingest_to_apply_seconds",
			Help:    "Submission to core commit",
			Buckets: ingestBuckets,
		}, []string{"command"}),

		ApplyToPersist: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_apply_to_persist_seconds",
			Help:    "Core emit to database commit",
			Buckets: latencyBuckets,
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_persist_batch_duration_seconds",
			Help:    "Database batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfd_projection_update_duration_seconds",
			Help:    "Projection sink update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfd_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfd_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfd_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_projection_drops_total",
			Help: "Outputs dropped due to a full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_publish_drops_total",
			Help: "Outputs dropped due to a full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/db)",
		}, []string{"command", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_dedup_tier2_duration_seconds",
			Help:    "Database dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		StalePriceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_stale_price_updates_total",
			Help: "Price updates skipped for a non-increasing price sequence",
		}, []string{"partition"}),

		PriceSequenceGaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_price_sequence_gaps_total",
			Help: "Price updates that skipped sequence numbers",
		}, []string{"partition"}),

		// Market
		PositionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_positions_opened_total",
			Help: "Positions opened",
		}, []string{"side"}),

		Liquidations: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_liquidations_total",
			Help: "Positions liquidated",
		}),

		LiquidationBonus: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_liquidation_bonus_total",
			Help: "USDC paid to liquidators (micro-units)",
		}),

		SettlementPayouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_settlement_payouts_total",
			Help: "Settlement value paid or recorded (micro-units)",
		}, []string{"kind"}),

		MarketSettlements: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_market_settlements_total",
			Help: "Markets moved to Settled",
		}),

		HeatmapSpreadBps: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_heatmap_spread_bps",
			Help: "Latest oracle to T+2 spread",
		}),

		OracleDeviation: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_oracle_deviation_alerts_total",
			Help: "Feed updates whose source spread exceeded the deviation threshold",
		}, []string{"asset"}),

		OracleStaleFlagged: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_oracle_stale_flagged_total",
			Help: "Feeds flagged stale by the crank",
		}),

		OracleFeedSpreadBps: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfd_oracle_feed_spread_bps",
			Help: "Source spread around the median per asset",
		}, []string{"asset"}),

		// AMM
		SwapVolume: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_swap_volume_total",
			Help: "Swap input volume (micro-units)",
		}, []string{"pool", "direction"}),

		SwapFees: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_swap_fees_total",
			Help: "Swap fees charged (micro-units)",
		}, []string{"pool"}),

		LiquidityAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_liquidity_added_total",
			Help: "Liquidity deposits",
		}, []string{"pool"}),

		SlotPoolsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_slot_pools_created_total",
			Help: "Settlement-slot pools created",
		}),

		// Governance
		ProposalsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_proposals_created_total",
			Help: "Proposals created",
		}, []string{"kind"}),

		ProposalsFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_proposals_finalized_total",
			Help: "Proposals by outcome",
		}, []string{"outcome"}),

		VotesCast: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_votes_cast_total",
			Help: "Votes cast",
		}, []string{"choice"}),

		FeesClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_fees_claimed_total",
			Help: "Staker fees claimed (micro-units)",
		}),

		TokensBoughtBack: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_tokens_bought_back_total",
			Help: "Governance tokens burned by buyback (micro-units)",
		}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_persist_events_written_total",
			Help: "Events written to the database",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_persist_journals_written_total",
			Help: "Journal entries written to the database",
		}),

		PersistRecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_persist_records_written_total",
			Help: "Record rows written to the database",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cfd_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Ingestion & Stream
		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_ingest_messages_total",
			Help: "Commands received by transport and outcome",
		}, []string{"transport", "outcome"}),

		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		}, []string{"endpoint"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "cfd_stream_clients",
			Help: "Connected event stream clients",
		}),

		StreamDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "cfd_stream_drops_total",
			Help: "Events dropped for slow stream clients",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfd_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cfd_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
