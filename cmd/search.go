package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	appconfig "github.com/ca-srg/halalfinder/internal/config"
	"github.com/ca-srg/halalfinder/internal/geo"
	"github.com/ca-srg/halalfinder/internal/metrics"
	"github.com/ca-srg/halalfinder/internal/types"
)

// coordinateValue is a "lat,lng" flag value
type coordinateValue struct {
	coord types.Coordinate
	set   bool
}

var _ pflag.Value = (*coordinateValue)(nil)

func (c *coordinateValue) String() string {
	if !c.set {
		return ""
	}
	return c.coord.String()
}

func (c *coordinateValue) Set(s string) error {
	coord, err := types.ParseCoordinate(s)
	if err != nil {
		return err
	}
	c.coord, c.set = coord, true
	return nil
}

func (c *coordinateValue) Type() string {
	return "lat,lng"
}

var (
	searchAddress string
	searchAt      coordinateValue
	searchDevice  bool
	searchJSON    bool
	searchPhone   bool
	searchLimit   int
	searchTimeout time.Duration
	searchVerbose bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for alcohol-free restaurants",
	Long: `
Search for restaurants that do not serve alcohol around an address, a
coordinate, or the current device location (resolved from the public IP).

Results are filtered, de-duplicated and sorted by distance, closest first.

Examples:
  halalfinder search --address "Astoria, Queens"
  halalfinder search --at 40.7128,-74.0060 --limit 10
  halalfinder search --device --phone
  halalfinder search -a "Dearborn, MI" --json
`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchAddress, "address", "a", "", "Address, neighbourhood or landmark to search around")
	searchCmd.Flags().Var(&searchAt, "at", "Search origin as latitude,longitude")
	searchCmd.Flags().BoolVar(&searchDevice, "device", false, "Search around the current device location")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output results in JSON format")
	searchCmd.Flags().BoolVar(&searchPhone, "phone", false, "Look up phone numbers for each result")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of results to print (0 prints all)")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "Overall search timeout (defaults to SEARCH_TIMEOUT)")
	searchCmd.Flags().BoolVarP(&searchVerbose, "verbose", "v", false, "Log provider requests to stderr")
}

type searchInput int

const (
	inputAddress searchInput = iota
	inputCoordinate
	inputDevice
)

// resolveSearchInput checks that exactly one origin flag was given
func resolveSearchInput(address string, at coordinateValue, device bool) (searchInput, error) {
	count := 0
	input := inputAddress
	if strings.TrimSpace(address) != "" {
		count++
	}
	if at.set {
		count++
		input = inputCoordinate
	}
	if device {
		count++
		input = inputDevice
	}

	switch count {
	case 0:
		return 0, fmt.Errorf("one of --address, --at or --device is required")
	case 1:
		return input, nil
	default:
		return 0, fmt.Errorf("--address, --at and --device are mutually exclusive")
	}
}

// searchOutput is the JSON document printed with --json
type searchOutput struct {
	RunToken        string              `json:"run_token"`
	Origin          types.Coordinate    `json:"origin"`
	ResolvedAddress string              `json:"resolved_address,omitempty"`
	Count           int                 `json:"count"`
	Results         []types.ResultEntry `json:"results"`
	DurationMs      int64               `json:"duration_ms"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	input, err := resolveSearchInput(searchAddress, searchAt, searchDevice)
	if err != nil {
		return err
	}
	if searchLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := newApp(cfg, componentLogOutput(searchVerbose))
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.RecordInvocation(metrics.ModeCLI)

	timeout := searchTimeout
	if timeout <= 0 {
		timeout = cfg.SearchTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token := uuid.NewString()
	ctx = types.WithRunToken(ctx, token)

	start := time.Now()
	out := searchOutput{RunToken: token}

	var entries []types.ResultEntry
	switch input {
	case inputAddress:
		var resolved *types.GeocodeResult
		entries, resolved, err = a.orchestrator.RunFromAddress(ctx, searchAddress)
		if resolved != nil {
			out.Origin = resolved.Location
			out.ResolvedAddress = resolved.FormattedAddress
		}
	case inputCoordinate:
		out.Origin = searchAt.coord
		entries, err = a.orchestrator.Run(ctx, searchAt.coord)
	case inputDevice:
		out.Origin, err = a.locator.Locate(ctx)
		if err == nil {
			out.ResolvedAddress = a.orchestrator.Describe(ctx, out.Origin)
			entries, err = a.orchestrator.Run(ctx, out.Origin)
		}
	}
	if err != nil {
		return searchFailure(err)
	}

	entries = limitEntries(entries, searchLimit)
	if searchPhone {
		if enricher := a.phoneEnricher(); enricher != nil {
			entries = enricher.Enrich(ctx, entries)
		}
	}

	out.Results = entries
	out.Count = len(entries)
	out.DurationMs = time.Since(start).Milliseconds()

	if searchJSON {
		return writeSearchJSON(cmd.OutOrStdout(), out)
	}
	printSearchResults(cmd.OutOrStdout(), out)
	return nil
}

// searchFailure turns a search error into the message shown to the user
func searchFailure(err error) error {
	message := types.DisplayMessage(err)
	var se *types.SearchError
	if errors.As(err, &se) && se.Suggestion != "" {
		message += ". " + se.Suggestion
	}
	return fmt.Errorf("%s: %w", message, err)
}

func limitEntries(entries []types.ResultEntry, limit int) []types.ResultEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func writeSearchJSON(w io.Writer, out searchOutput) error {
	if out.Results == nil {
		out.Results = []types.ResultEntry{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func printSearchResults(w io.Writer, out searchOutput) {
	origin := out.Origin.String()
	if out.ResolvedAddress != "" {
		origin = fmt.Sprintf("%s (%s)", out.ResolvedAddress, origin)
	}
	fmt.Fprintf(w, "Alcohol-free restaurants near %s\n", origin)
	fmt.Fprintf(w, "Found %d restaurants in %dms\n\n", out.Count, out.DurationMs)

	for i, e := range out.Results {
		fmt.Fprintf(w, "%2d. %s  [%s]\n", i+1, e.Name, geo.FormatMeters(e.DistanceMeters))
		if e.Address != "" {
			fmt.Fprintf(w, "    %s\n", e.Address)
		}

		var details []string
		if e.Rating > 0 {
			details = append(details, fmt.Sprintf("rating %.1f (%d)", e.Rating, e.UserRatingsTotal))
		}
		if e.OpenNow != nil {
			if *e.OpenNow {
				details = append(details, "open now")
			} else {
				details = append(details, "closed")
			}
		}
		if e.Phone != "" {
			details = append(details, e.Phone)
		}
		if len(details) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(details, " | "))
		}
	}
}
