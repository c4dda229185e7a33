package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nftstake/core/events"
	"nftstake/native/staking"
)

// StakingMetrics tracks ledger activity derived from committed events.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	totalStaked prometheus.Gauge
	distributed prometheus.Counter
	penalties   prometheus.Counter
	deposited   prometheus.Counter
	paused      prometheus.Gauge
	rewardRate  prometheus.Gauge
	archiveDrop prometheus.Counter
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the process-wide staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Count of committed ledger events by type.",
			}, []string{"type"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "total_staked",
				Help:      "Number of live staking positions.",
			}),
			distributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "rewards_distributed_total",
				Help:      "Reward units paid out of the reserve.",
			}),
			penalties: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "early_unstake_penalties_total",
				Help:      "Reward units forfeited to early unstake penalties.",
			}),
			deposited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "rewards_deposited_total",
				Help:      "Reward units deposited into the reserve.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "paused",
				Help:      "Indicates whether the ledger emergency pause is engaged (1) or not (0).",
			}),
			rewardRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakingd",
				Subsystem: "ledger",
				Name:      "reward_rate",
				Help:      "Reward units accrued per position per day.",
			}),
			archiveDrop: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakingd",
				Subsystem: "eventlog",
				Name:      "dropped_events_total",
				Help:      "Ledger events not archived because the write queue was full.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.totalStaked,
			stakingRegistry.distributed,
			stakingRegistry.penalties,
			stakingRegistry.deposited,
			stakingRegistry.paused,
			stakingRegistry.rewardRate,
			stakingRegistry.archiveDrop,
		)
	})
	return stakingRegistry
}

// RecordArchiveDrop counts an event the archive had to discard.
func (m *StakingMetrics) RecordArchiveDrop() {
	if m == nil {
		return
	}
	m.archiveDrop.Inc()
}

// Sync seeds the gauges from the ledger state, typically at boot.
func (m *StakingMetrics) Sync(totalStaked, rewardRate uint64, paused bool) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(totalStaked))
	m.rewardRate.Set(float64(rewardRate))
	m.setPaused(paused)
}

func (m *StakingMetrics) setPaused(paused bool) {
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

// Emit implements events.Emitter so the registry can sit in the fanout.
func (m *StakingMetrics) Emit(evt events.Event) {
	if m == nil {
		return
	}
	rec, ok := evt.(*events.Record)
	if !ok || rec == nil {
		return
	}
	m.operations.WithLabelValues(rec.Type).Inc()
	switch rec.Type {
	case staking.EventTypeStaked:
		m.totalStaked.Inc()
	case staking.EventTypeUnstaked:
		m.totalStaked.Dec()
		m.penalties.Add(attrFloat(rec, "penalty"))
		if rec.Attr("paidOut") == "true" {
			m.distributed.Add(attrFloat(rec, "reward"))
		}
	case staking.EventTypeRewardClaimed:
		m.distributed.Add(attrFloat(rec, "amount"))
	case staking.EventTypeRewardsDeposited:
		m.deposited.Add(attrFloat(rec, "amount"))
	case staking.EventTypeRewardRateUpdated:
		m.rewardRate.Set(attrFloat(rec, "rate"))
	case staking.EventTypeSecurity:
		switch rec.Attr("action") {
		case staking.SecurityActionPaused:
			m.setPaused(true)
		case staking.SecurityActionUnpaused:
			m.setPaused(false)
		case staking.SecurityActionEmergencyWithdraw:
			m.totalStaked.Dec()
		}
	}
}

func attrFloat(rec *events.Record, key string) float64 {
	v, err := strconv.ParseUint(rec.Attr(key), 10, 64)
	if err != nil {
		return 0
	}
	return float64(v)
}
