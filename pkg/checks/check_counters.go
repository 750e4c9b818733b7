package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
	"github.com/thomasvincent/nagios-plugins/pkg/counter"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func init() {
	AvailableChecks["counters"] = CheckEntry{"counters", func() CheckHandler { return &CheckCounters{} }}
}

// DefaultStateFile stores the counters of the previous run unless --state-file is set.
var DefaultStateFile = filepath.Join(os.TempDir(), "nagios-plugins-counters.yml")

// CounterMapping describes a known membase statistic.
type CounterMapping struct {
	Name        string
	Description string
	Unit        string
	Kind        counter.Kind
}

// MembaseCounters maps membase statistic keys to metric names.
var MembaseCounters = map[string]CounterMapping{
	"curr_items":                 {"current_active_items", "Current active items", "", counter.Current},
	"curr_items_tot":             {"current_total_items", "Current total items", "", counter.Current},
	"ep_num_active_non_resident": {"num_active_items_not_in_RAM", "Current non-resident item", "", counter.Current},
	"get_hits":                   {"num_successful_get", "Number of fetches", "", counter.Cumulative},
	"ep_bg_fetched":              {"num_items_get_from_disk", "Number of items fetched from the disk", "", counter.Cumulative},
	"ep_num_non_resident":        {"num_total_items_not_in_RAM", "Number of items stored only on disk, not cached in RAM", "", counter.Current},
	"ep_total_enqueued":          {"total_items_enqueued_for_storage", "Total number of items queued for storage", "", counter.Cumulative},
	"ep_total_new_items":         {"num_persisted_new_items", "Total number of persisted new items", "", counter.Cumulative},
	"get_misses":                 {"num_unsuccessful_get", "Number of unsuccessful fetches", "", counter.Cumulative},
	"mem_used":                   {"memory_usage", "Current memory usage", "B", counter.Current},
	"ep_total_cache_size":        {"total_cache_size", "Cache size", "B", counter.Current},
	"bytes_written":              {"bytes_written", "Number of bytes written", "B", counter.Cumulative},
	"ep_queue_size":              {"disk_write_queue_size", "Number of items in the disk written queue", "", counter.Current},
	"ep_io_num_write":            {"num_io_write_operations", "Number of io write operations", "", counter.Cumulative},
	"ep_io_num_read":             {"num_io_read_operations", "Number of io read operations", "", counter.Cumulative},
	"ep_total_persisted":         {"num_items_persisted", "Total number of persisted items", "", counter.Cumulative},
	"ep_total_del_items":         {"num_items_deleted", "Total number of persisted deletions", "", counter.Cumulative},
	"ep_item_commit_failed":      {"num_failed_transactions", "Number of times a transaction failed to commit due to storage errors", "", counter.Cumulative},
	"ep_expired":                 {"expired_items", "Number of times an item was expired", "", counter.Cumulative},
}

// CheckCounters reports membase statistics, cumulative counters as difference to the previous run.
type CheckCounters struct {
	stateFile       string
	list            bool
	thresholdMetric string
	kinds           []string

	// Store overrides the state file, used by tests.
	Store counter.Store
}

type membaseStats struct {
	Op struct {
		Samples map[string][]interface{} `json:"samples"`
	} `json:"op"`
}

func (l *CheckCounters) Build() *CheckData {
	return &CheckData{
		name: "counters",
		description: "Reports membase bucket statistics, ex.: --command 'curl -s -u user:pass http://host:8091/pools/default/buckets/default/stats'. " +
			"Cumulative counters are reported as difference to the previous run.",
		usage: "[key...|all]",
		args: map[string]CheckArgument{
			"state-file":       {value: &l.stateFile, description: "file which stores the counters between two runs (default " + DefaultStateFile + ")"},
			"list":             {value: &l.list, shorthand: "l", description: "list available statistic keys"},
			"threshold-metric": {value: &l.thresholdMetric, description: "metric the thresholds apply to, ex.: cache_miss_ratio"},
			"kind":             {value: &l.kinds, description: "set the counter kind of a statistic, ex.: --kind custom_ops=cumulative"},
		},
	}
}

func (l *CheckCounters) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	if check.HasThresholds() && l.thresholdMetric == "" {
		return nil, fmt.Errorf("--threshold-metric is required when using thresholds")
	}

	mappings, err := l.mappings()
	if err != nil {
		return nil, err
	}

	data, err := check.Input().Read(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := ParseMembaseStats(data)
	if err != nil {
		return nil, err
	}

	keys := maps.Keys(stats)
	slices.Sort(keys)
	if l.list {
		return checkresult.New(status.OK, fmt.Sprintf("%d statistics available", len(keys)),
			checkresult.WithDetails(strings.Join(keys, "\n"))), nil
	}

	selected := keys
	if args := check.Args(); len(args) > 0 && args[0] != "all" {
		selected = args
	}

	store := l.Store
	if store == nil {
		path := l.stateFile
		if path == "" {
			path = DefaultStateFile
		}
		fileStore := counter.NewFileStore(path)
		log.Debugf("counters: state file %s", fileStore.Path())
		store = fileStore
	}
	set, err := counter.NewSet(store)
	if err != nil {
		return nil, err
	}

	metrics := checkresult.Metrics{}
	details := []string{}
	for _, key := range selected {
		raw, ok := stats[key]
		if !ok {
			return nil, fmt.Errorf("unknown statistic: %s", key)
		}
		mapping, known := mappings[key]
		if !known {
			mapping = CounterMapping{Name: key, Kind: counter.Current}
		}
		value := set.Value(key, mapping.Kind, raw)
		metrics[mapping.Name] = value
		kind := mapping.Kind.String()
		if mapping.Kind == counter.Cumulative {
			if prev, ok := set.Previous(key); ok {
				kind += ", previous " + formatCounter(prev, mapping.Unit)
			} else {
				kind += ", first run"
			}
		}
		details = append(details, fmt.Sprintf("%s: %s (%s)", mapping.Name, formatCounter(value, mapping.Unit), kind))
	}
	for name, ratio := range membaseRatios(stats) {
		metrics[name] = ratio
	}

	if err := set.Commit(); err != nil {
		return nil, err
	}

	state := status.OK
	if l.thresholdMetric != "" {
		val, ok := metrics[l.thresholdMetric]
		if !ok {
			return nil, fmt.Errorf("threshold metric %s not found", l.thresholdMetric)
		}
		num, err := convert.Float64E(val)
		if err != nil {
			return nil, fmt.Errorf("threshold metric %s: %w", l.thresholdMetric, err)
		}
		state = check.Evaluate(num)
	}

	slices.Sort(details)

	return checkresult.New(state, fmt.Sprintf("Membase stats: %d metrics", len(metrics)),
		checkresult.WithMetrics(metrics),
		checkresult.WithDetails(strings.Join(details, "\n"))), nil
}

// mappings returns the known counters with the --kind overrides applied.
func (l *CheckCounters) mappings() (map[string]CounterMapping, error) {
	mappings := maps.Clone(MembaseCounters)
	for _, def := range l.kinds {
		key, kindName, found := strings.Cut(def, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --kind %q, expected key=current|cumulative", def)
		}
		kind, err := counter.ParseKind(kindName)
		if err != nil {
			return nil, err
		}
		mapping, ok := mappings[key]
		if !ok {
			mapping = CounterMapping{Name: key}
		}
		mapping.Kind = kind
		mappings[key] = mapping
	}

	return mappings, nil
}

// ParseMembaseStats returns the last sample of every statistic.
func ParseMembaseStats(data []byte) (map[string]float64, error) {
	doc := membaseStats{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if doc.Op.Samples == nil {
		return nil, fmt.Errorf("json: no op.samples found")
	}

	stats := make(map[string]float64, len(doc.Op.Samples))
	for key, samples := range doc.Op.Samples {
		if len(samples) == 0 {
			continue
		}
		num, err := convert.Float64E(samples[len(samples)-1])
		if err != nil {
			log.Tracef("skipping non numeric statistic %s: %s", key, err.Error())

			continue
		}
		stats[key] = num
	}

	return stats, nil
}

// membaseRatios calculates the derived ratios in percent, based on the raw values.
func membaseRatios(stats map[string]float64) map[string]float64 {
	ratios := map[string]float64{}

	activeNonResident, hasActiveNonResident := stats["ep_num_active_non_resident"]
	currItems, hasCurrItems := stats["curr_items"]
	if hasActiveNonResident && hasCurrItems && currItems > 0 {
		ratios["resident_item_ratio"] = math.Max(100-activeNonResident/currItems*100, 0)
	}

	hits, hasHits := stats["get_hits"]
	fetched, hasFetched := stats["ep_bg_fetched"]
	if hasHits && hasFetched && hits > 0 {
		ratios["cache_miss_ratio"] = fetched / hits * 100
	}

	nonResident, hasNonResident := stats["ep_num_non_resident"]
	itemsTotal, hasItemsTotal := stats["curr_items_tot"]
	if hasNonResident && hasItemsTotal && hasCurrItems && hasActiveNonResident {
		if replicas := itemsTotal - currItems; replicas > 0 {
			ratios["replica_resident_ratio"] = math.Max(100-(nonResident-activeNonResident)/replicas*100, 0)
		}
	}

	return ratios
}

func formatCounter(value float64, unit string) string {
	if unit == "B" && value >= 0 {
		return humanize.IBytes(uint64(value))
	}

	return convert.Num2String(value) + unit
}
