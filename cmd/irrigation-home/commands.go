package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/coordinator"
)

// reportPrograms is how many programs report prints per controller.
const reportPrograms = 3

type foundController struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname"`
	Zones    int    `json:"zones"`
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Sweep the local /24 networks for controllers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.scanner.Scan(cmd.Context())
			found := make([]foundController, 0, len(res.Devices))
			for _, dev := range res.Devices {
				fc := foundController{Address: dev.Address()}
				// Identification is best effort; the device already answered its probe.
				if p, err := dev.Program(cmd.Context(), 1); err == nil {
					fc.Hostname = p.Hostname
					fc.Zones = len(p.ZoneNames)
				} else {
					a.logger.Debug("identify controller", "addr", dev.Address(), "err", err)
				}
				found = append(found, fc)
			}
			a.print(cmd, found)
			return nil
		},
	}
}

// controllerReport is everything report reads from one controller.
type controllerReport struct {
	Address    string           `json:"address"`
	BootTime   time.Time        `json:"boot_time"`
	SystemTime time.Time        `json:"system_time"`
	Status     map[string]any   `json:"status"`
	Calendar   []any            `json:"calendar"`
	Programs   []*caddy.Program `json:"programs"`
	Errors     []string         `json:"errors,omitempty"`
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report [addr...]",
		Short: "Dump clock, status, calendar and programs of every controller",
		Long: `report reads boot time, system time, status, the next day of the
calendar and programs 1-3 from each controller. Without addresses it scans
first and reports on everything found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var devices []caddy.Device
			if len(args) == 0 {
				devices = a.scanner.Scan(cmd.Context()).Devices
			}
			for _, addr := range args {
				dev, err := a.device(addr)
				if err != nil {
					return err
				}
				devices = append(devices, dev)
			}

			reports := make([]*controllerReport, 0, len(devices))
			for _, dev := range devices {
				reports = append(reports, buildReport(cmd.Context(), dev))
			}
			if _, ok := a.formatter.(*TableFormatter); ok {
				return writeReports(cmd.OutOrStdout(), reports)
			}
			a.print(cmd, reports)
			return nil
		},
	}
}

// buildReport collects what it can; failed reads are listed in Errors.
func buildReport(ctx context.Context, dev caddy.Device) *controllerReport {
	r := &controllerReport{Address: dev.Address()}
	fail := func(what string, err error) {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	var err error
	if r.BootTime, err = dev.BootTime(ctx); err != nil {
		fail("boot time", err)
	}
	if r.SystemTime, err = dev.SystemTime(ctx); err != nil {
		fail("system time", err)
	}
	if r.Status, err = dev.Status(ctx); err != nil {
		fail("status", err)
	}
	now := time.Now()
	if r.Calendar, err = dev.Calendar(ctx, now, now.Add(24*time.Hour)); err != nil {
		fail("calendar", err)
	}
	for n := 1; n <= reportPrograms; n++ {
		p, err := dev.Program(ctx, n)
		if err != nil {
			fail("program "+strconv.Itoa(n), err)
			continue
		}
		r.Programs = append(r.Programs, p)
	}
	return r
}

// writeReports prints reports as headed sections with indented JSON bodies.
func writeReports(w io.Writer, reports []*controllerReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No controllers found.")
		return err
	}
	section := func(title string, v any) error {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", title, err)
		}
		_, err = fmt.Fprintf(w, "%s:\n%s\n", title, b)
		return err
	}
	for _, r := range reports {
		fmt.Fprintf(w, "== %s ==\n", r.Address)
		fmt.Fprintf(w, "Boot Time: %s\n", cellTime(r.BootTime))
		fmt.Fprintf(w, "System Time: %s\n", cellTime(r.SystemTime))
		if err := section("Current Status", r.Status); err != nil {
			return err
		}
		if err := section("Current Calendar", r.Calendar); err != nil {
			return err
		}
		for _, p := range r.Programs {
			if err := section(fmt.Sprintf("Program #%d", p.Number), p); err != nil {
				return err
			}
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "error: %s\n", e)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func cellTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

type deviceTime struct {
	Address string    `json:"address"`
	Time    time.Time `json:"time"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <addr>",
		Short: "Show the controller status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			st, err := dev.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			a.print(cmd, st)
			return nil
		},
	}
}

func newBootTimeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "boot-time <addr>",
		Short: "Show when the controller last booted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			t, err := dev.BootTime(cmd.Context())
			if err != nil {
				return fmt.Errorf("read boot time: %w", err)
			}
			a.print(cmd, deviceTime{Address: dev.Address(), Time: t})
			return nil
		},
	}
}

func newTimeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "time <addr>",
		Short: "Show the controller clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			t, err := dev.SystemTime(cmd.Context())
			if err != nil {
				return fmt.Errorf("read system time: %w", err)
			}
			a.print(cmd, deviceTime{Address: dev.Address(), Time: t})
			return nil
		},
	}
}

func newCalendarCmd(a *app) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "calendar <addr>",
		Short: "Show scheduled runs between --start and --end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from := time.Now()
			if start != "" {
				t, err := parseTimeArg(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				from = t
			}
			to := from.Add(24 * time.Hour)
			if end != "" {
				t, err := parseTimeArg(end)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				to = t
			}
			if to.Before(from) {
				return fmt.Errorf("--end is before --start")
			}

			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			events, err := dev.Calendar(cmd.Context(), from, to)
			if err != nil {
				return fmt.Errorf("read calendar: %w", err)
			}
			a.print(cmd, events)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start: RFC 3339, YYYY-MM-DD or Unix seconds (default now)")
	cmd.Flags().StringVar(&end, "end", "", "window end (default start + 24h)")
	return cmd
}

// parseTimeArg accepts RFC 3339, a local date, or Unix seconds.
func parseTimeArg(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, time.Local); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", v)
	}
	return time.Unix(sec, 0), nil
}

func newProgramCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "program <addr> [n]",
		Short: "Show watering program n (default 1)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 2 {
				v, err := strconv.Atoi(args[1])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid program number %q", args[1])
				}
				n = v
			}
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			p, err := dev.Program(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("read program %d: %w", n, err)
			}
			if _, ok := a.formatter.(*TableFormatter); ok {
				// The flat zone list reads better than the parallel arrays.
				a.print(cmd, p.Zones())
				return nil
			}
			a.print(cmd, p)
			return nil
		},
	}
}

func newZonesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "zones <addr>",
		Short: "List zone names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			names, err := dev.ZoneNames(cmd.Context())
			if err != nil {
				return fmt.Errorf("read zone names: %w", err)
			}
			a.print(cmd, names)
			return nil
		},
	}
}

func newSetClockCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "set-clock <addr>",
		Short: "Set the controller clock to now, or to --at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now()
			if at != "" {
				v, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				t = v
			}
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			if !dev.SetSystemTime(cmd.Context(), t) {
				return fmt.Errorf("set clock on %s: %w", dev.Address(), coordinator.ErrRejected)
			}
			a.print(cmd, deviceTime{Address: dev.Address(), Time: t})
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "time to set, RFC 3339 (default now)")
	return cmd
}

func newSetNTPCmd(a *app) *cobra.Command {
	var s caddy.NTPSettings
	cmd := &cobra.Command{
		Use:   "set-ntp <addr>",
		Short: "Configure network time on the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.Enabled && s.Server == "" {
				return fmt.Errorf("--server is required when NTP is enabled")
			}
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			if !dev.SetNTP(cmd.Context(), s) {
				return fmt.Errorf("set ntp on %s: %w", dev.Address(), coordinator.ErrRejected)
			}
			a.print(cmd, s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&s.Enabled, "enabled", true, "enable NTP")
	cmd.Flags().StringVar(&s.Server, "server", "", "NTP server host name")
	cmd.Flags().StringVar(&s.Timezone, "timezone", "", "timezone value sent to the controller as-is")
	cmd.Flags().BoolVar(&s.DST, "dst", false, "observe daylight saving time")
	return cmd
}

func newSetZonesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-zones <addr> <name>...",
		Short: "Rename zones in controller order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := a.device(args[0])
			if err != nil {
				return err
			}
			names := args[1:]
			if !dev.SetZoneNames(cmd.Context(), names) {
				return fmt.Errorf("set zone names on %s: %w", dev.Address(), coordinator.ErrRejected)
			}
			a.print(cmd, names)
			return nil
		},
	}
}
