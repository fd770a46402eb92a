// vigilctl is an interactive shell for a running vigild instance.
//
// It talks to the HTTP API and offers completion for the command
// vocabulary. The API key is taken from VIGIL_API_KEY or prompted for
// without echo.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/vigil/internal/types"
)

var commands = []prompt.Suggest{
	{Text: "health", Description: "show daemon statistics"},
	{Text: "logs", Description: "query log entries: logs [source=S] [level=L] [limit=N] [since=DUR]"},
	{Text: "log", Description: "ingest a log entry: log <source> <level> <message...>"},
	{Text: "metrics", Description: "query metric points: metrics [metric=M] [source=S] [limit=N] [since=DUR]"},
	{Text: "metric", Description: "ingest a sample: metric <source> <name>=<value> [...]"},
	{Text: "events", Description: "query fired alerts: events [rule=R] [source=S] [limit=N]"},
	{Text: "rules", Description: "list alert rules"},
	{Text: "rule", Description: "manage rules: rule add|del|enable|disable ..."},
	{Text: "report", Description: "compliance report: report [since=DUR]"},
	{Text: "help", Description: "show command help"},
	{Text: "exit", Description: "leave the shell"},
}

var ruleSubcommands = []prompt.Suggest{
	{Text: "add", Description: "rule add <name> <severity> <expression...>"},
	{Text: "del", Description: "rule del <name>"},
	{Text: "enable", Description: "rule enable <name>"},
	{Text: "disable", Description: "rule disable <name>"},
}

type shell struct {
	api *client
}

func main() {
	var (
		server = flag.String("server", "http://localhost:8080", "vigild base URL")
		key    = flag.String("key", "", "API key (defaults to VIGIL_API_KEY)")
	)
	flag.Parse()

	apiKey := *key
	if apiKey == "" {
		apiKey = os.Getenv("VIGIL_API_KEY")
	}
	if apiKey == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("API key (empty for none): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vigilctl: read key: %v\n", err)
			os.Exit(1)
		}
		apiKey = strings.TrimSpace(string(raw))
	}

	sh := &shell{api: newClient(*server, apiKey)}

	if _, err := sh.api.health(); err != nil {
		fmt.Fprintf(os.Stderr, "vigilctl: cannot reach %s: %v\n", *server, err)
		os.Exit(1)
	}

	fmt.Printf("connected to %s (type 'help' for commands)\n", *server)
	p := prompt.New(
		sh.execute,
		completer,
		prompt.OptionTitle("vigilctl"),
		prompt.OptionPrefix("vigil> "),
		prompt.OptionMaxSuggestion(12),
	)
	p.Run()
}

func completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	fields := strings.Fields(text)

	if len(fields) <= 1 && !strings.HasSuffix(text, " ") {
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}
	if len(fields) >= 1 && fields[0] == "rule" {
		if len(fields) == 1 || (len(fields) == 2 && !strings.HasSuffix(text, " ")) {
			return prompt.FilterHasPrefix(ruleSubcommands, d.GetWordBeforeCursor(), true)
		}
	}
	return nil
}

func (s *shell) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	var err error
	switch fields[0] {
	case "exit", "quit":
		fmt.Println("bye")
		os.Exit(0)
	case "help":
		printHelp()
	case "health":
		err = s.showHealth()
	case "logs":
		err = s.queryLogs(fields[1:])
	case "log":
		err = s.ingestLog(fields[1:])
	case "metrics":
		err = s.queryMetrics(fields[1:])
	case "metric":
		err = s.ingestMetric(fields[1:])
	case "events":
		err = s.queryEvents(fields[1:])
	case "rules":
		err = s.listRules()
	case "rule":
		err = s.ruleCommand(fields[1:])
	case "report":
		err = s.report(fields[1:])
	default:
		fmt.Printf("unknown command %q (try 'help')\n", fields[0])
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func printHelp() {
	for _, c := range commands {
		fmt.Printf("  %-8s %s\n", c.Text, c.Description)
	}
}

func (s *shell) showHealth() error {
	h, err := s.api.health()
	if err != nil {
		return err
	}
	fmt.Printf("service=%v status=%v\n", h["service"], h["status"])
	if stats, ok := h["stats"].(map[string]any); ok {
		for _, k := range []string{"logs", "metrics", "events", "rules", "notifications_dropped"} {
			if v, ok := stats[k]; ok {
				fmt.Printf("  %-22s %v\n", k, v)
			}
		}
	}
	return nil
}

// parseArgs splits key=value arguments into query parameters, translating
// the since=DUR shorthand into an absolute from bound.
func parseArgs(args []string) (map[string]string, error) {
	params := make(map[string]string)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if key == "since" {
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("since: %v", err)
			}
			params["from"] = time.Now().Add(-d).UTC().Format(time.RFC3339)
			continue
		}
		params[key] = value
	}
	return params, nil
}

func (s *shell) queryLogs(args []string) error {
	params, err := parseArgs(args)
	if err != nil {
		return err
	}
	entries, err := s.api.queryLogs(params)
	if err != nil {
		return err
	}
	printLogs(entries)
	return nil
}

func (s *shell) ingestLog(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: log <source> <level> <message...>")
	}
	level, ok := types.ParseLevel(args[1])
	if !ok {
		return fmt.Errorf("unknown level %q", args[1])
	}
	err := s.api.ingestLog(types.LogEntry{
		Source:    args[0],
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   strings.Join(args[2:], " "),
	})
	if err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func (s *shell) queryMetrics(args []string) error {
	params, err := parseArgs(args)
	if err != nil {
		return err
	}
	points, err := s.api.queryMetrics(params)
	if err != nil {
		return err
	}
	printPoints(points)
	return nil
}

func (s *shell) ingestMetric(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: metric <source> <name>=<value> [...]")
	}
	sample := types.MetricSample{
		Source:    args[0],
		Timestamp: time.Now().UTC(),
		Metrics:   make(map[string]float64),
	}
	for _, pair := range args[1:] {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("expected name=value, got %q", pair)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		sample.Metrics[name] = value
	}

	fired, err := s.api.ingestMetric(sample)
	if err != nil {
		return err
	}
	fmt.Println("ok")
	if len(fired) > 0 {
		fmt.Printf("fired %d alert(s):\n", len(fired))
		printEvents(fired)
	}
	return nil
}

func (s *shell) queryEvents(args []string) error {
	params, err := parseArgs(args)
	if err != nil {
		return err
	}
	events, err := s.api.queryEvents(params)
	if err != nil {
		return err
	}
	printEvents(events)
	return nil
}

func (s *shell) listRules() error {
	rules, err := s.api.listRules()
	if err != nil {
		return err
	}
	printRules(rules)
	return nil
}

func (s *shell) ruleCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rule add|del|enable|disable ...")
	}
	switch args[0] {
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("usage: rule add <name> <severity> <expression...>")
		}
		severity, ok := types.ParseSeverity(args[2])
		if !ok {
			return fmt.Errorf("unknown severity %q", args[2])
		}
		err := s.api.addRule(types.AlertRule{
			Name:       args[1],
			Expression: strings.Join(args[3:], " "),
			Severity:   severity,
			Enabled:    true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("rule %s added\n", args[1])
		return nil
	case "del":
		if len(args) != 2 {
			return fmt.Errorf("usage: rule del <name>")
		}
		if err := s.api.deleteRule(args[1]); err != nil {
			return err
		}
		fmt.Printf("rule %s deleted\n", args[1])
		return nil
	case "enable", "disable":
		if len(args) != 2 {
			return fmt.Errorf("usage: rule %s <name>", args[0])
		}
		if err := s.api.setRuleEnabled(args[1], args[0] == "enable"); err != nil {
			return err
		}
		fmt.Printf("rule %s %sd\n", args[1], args[0])
		return nil
	default:
		return fmt.Errorf("unknown rule subcommand %q", args[0])
	}
}

func (s *shell) report(args []string) error {
	params, err := parseArgs(args)
	if err != nil {
		return err
	}
	rep, err := s.api.complianceReport(params)
	if err != nil {
		return err
	}
	printReport(rep)
	return nil
}
