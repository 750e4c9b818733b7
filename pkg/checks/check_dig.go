package checks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

func init() {
	AvailableChecks["dig"] = CheckEntry{"dig", func() CheckHandler {
		return &CheckDig{recordType: "A", retries: 1, retryDelay: time.Second}
	}}
}

var (
	reDigQueryTime = regexp.MustCompile(`;; Query time: (\d+) msec`)
	reDigSection   = regexp.MustCompile(`^;; ([A-Z]+) (?:PSEUDO)?SECTION:`)
)

// CheckDig evaluates the output of a dig command.
type CheckDig struct {
	query      string
	recordType string
	expected   string
	retries    int
	retryDelay time.Duration
}

// DigAnswer is a single answer of a dns query.
type DigAnswer struct {
	Name  string
	Type  string
	Value string
}

func (l *CheckDig) Build() *CheckData {
	return &CheckData{
		name: "dig",
		description: "Checks the output of dig (full or +short), ex.: --command 'dig -t A +short example.com'. " +
			"Thresholds apply to the query duration in seconds.",
		args: map[string]CheckArgument{
			"query":       {value: &l.query, shorthand: "l", description: "only use answers for this name"},
			"record-type": {value: &l.recordType, shorthand: "T", description: "only use answers of this record type"},
			"expected":    {value: &l.expected, shorthand: "a", description: "address which must be among the answers"},
			"retries":     {value: &l.retries, description: "number of attempts for command inputs"},
			"retry-delay": {value: &l.retryDelay, description: "wait time between attempts"},
		},
	}
}

func (l *CheckDig) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	data, err := check.Input().ReadRetry(ctx, l.retries, l.retryDelay)
	if err != nil {
		return nil, err
	}

	answers, queryTime, err := ParseDigOutput(string(data))
	if err != nil {
		return nil, err
	}
	answers, err = l.filter(answers)
	if err != nil {
		return nil, err
	}

	duration := check.Input().Duration()
	if queryTime >= 0 {
		duration = queryTime
	}
	seconds := duration.Seconds()

	values := make([]string, 0, len(answers))
	for _, answer := range answers {
		values = append(values, answer.Value)
	}
	response := strings.Join(values, ", ")
	log.Debugf("dig: %d answers in %s: %s", len(answers), duration, response)

	matches := 1
	if l.expected != "" && !containsAddress(values, l.expected) {
		matches = 0
	}
	metrics := checkresult.Metrics{
		"duration":         seconds,
		"response_matches": matches,
		"answers":          len(answers),
	}
	details := checkresult.WithDetails("Response: " + response)

	switch {
	case matches == 0:
		return checkresult.New(status.Critical,
			fmt.Sprintf("Expected address '%s' not found", l.expected),
			checkresult.WithMetrics(metrics), details), nil
	case len(answers) == 0:
		return checkresult.New(status.Critical,
			fmt.Sprintf("DNS query returned no %s answers", l.recordType),
			checkresult.WithMetrics(metrics)), nil
	}

	return checkresult.New(check.Evaluate(seconds),
		fmt.Sprintf("DNS response received in %.2fs, %d answers", seconds, len(answers)),
		checkresult.WithMetrics(metrics), details), nil
}

func (l *CheckDig) filter(answers []DigAnswer) ([]DigAnswer, error) {
	recordType := strings.ToUpper(strings.TrimSpace(l.recordType))
	if recordType != "" {
		if _, ok := dns.StringToType[recordType]; !ok {
			return nil, fmt.Errorf("unknown record type: %s", l.recordType)
		}
	}
	query := ""
	if l.query != "" {
		query = strings.ToLower(dns.Fqdn(l.query))
	}

	res := []DigAnswer{}
	for _, answer := range answers {
		// +short answers have no name and type
		if answer.Type != "" && recordType != "" && answer.Type != recordType {
			continue
		}
		if answer.Name != "" && query != "" && strings.ToLower(answer.Name) != query {
			continue
		}
		res = append(res, answer)
	}

	return res, nil
}

// ParseDigOutput returns the answers and the reported query time (-1 if not found).
// Full output is parsed as resource records, only the answer section is used.
// +short lines are used verbatim.
func ParseDigOutput(output string) (answers []DigAnswer, queryTime time.Duration, err error) {
	answers = []DigAnswer{}
	queryTime = -1
	section := ""
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ";") {
			if match := reDigSection.FindStringSubmatch(line); match != nil {
				section = match[1]

				continue
			}
			if match := reDigQueryTime.FindStringSubmatch(line); match != nil {
				msec, err := strconv.ParseInt(match[1], 10, 64)
				if err != nil {
					return nil, 0, fmt.Errorf("query time: %w", err)
				}
				queryTime = time.Duration(msec) * time.Millisecond
			}

			continue
		}
		if section != "" && section != "ANSWER" {
			continue
		}

		rr, rrErr := dns.NewRR(line)
		if rrErr != nil || rr == nil {
			answers = append(answers, DigAnswer{Value: line})

			continue
		}
		answers = append(answers, DigAnswer{
			Name:  rr.Header().Name,
			Type:  dns.TypeToString[rr.Header().Rrtype],
			Value: rrValue(rr),
		})
	}

	return answers, queryTime, nil
}

func rrValue(rr dns.RR) string {
	switch record := rr.(type) {
	case *dns.A:
		return record.A.String()
	case *dns.AAAA:
		return record.AAAA.String()
	case *dns.CNAME:
		return record.Target
	case *dns.NS:
		return record.Ns
	case *dns.PTR:
		return record.Ptr
	case *dns.MX:
		return record.Mx
	case *dns.TXT:
		return strings.Join(record.Txt, "")
	}

	return strings.TrimSpace(strings.TrimPrefix(rr.String(), rr.Header().String()))
}

func containsAddress(values []string, expected string) bool {
	expected = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(expected)), ".")
	for _, val := range values {
		if strings.TrimSuffix(strings.ToLower(val), ".") == expected {
			return true
		}
	}

	return false
}
