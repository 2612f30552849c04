package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/report"
	"github.com/shii9/ipwnedyou/internal/utils/output"
)

var (
	outputFormat string
	outputFile   string
	saveReport   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan and print the result",
}

var scanDomainCmd = &cobra.Command{
	Use:   "domain [domain]",
	Short: "Collect DNS, subdomain and WHOIS facts for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := domain.NormalizeTarget(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		at := time.Now()
		res := a.domains.Scan(ctx, target)
		return emit(a, res, report.FormatDomain(res), report.KindDomain, target, at)
	},
}

var scanIPCmd = &cobra.Command{
	Use:   "ip [address]",
	Short: "Geolocate an IPv4 address and resolve its PTR record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		at := time.Now()
		res := a.ips.Scan(ctx, args[0])
		return emit(a, res, report.FormatIP(res), report.KindIP, res.IP, at)
	},
}

var scanImageCmd = &cobra.Command{
	Use:   "image [path]",
	Short: "Analyze a local image: EXIF, OCR, location and reverse-search guidance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return errors.Wrap(err, "image")
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		at := time.Now()
		res := a.images.Analyze(ctx, args[0])
		return emit(a, res, report.FormatImage(res), report.KindImage, "", at)
	},
}

// emit prints the result in the selected format and optionally stores the
// text report. The normal format prints the report itself.
func emit(a *app, result interface{}, text, kind, target string, at time.Time) error {
	var data interface{} = result
	if outputFormat == output.FormatNormal || outputFormat == "" {
		data = text
	}

	if outputFile != "" {
		if err := output.WriteToFile(data, outputFormat, outputFile); err != nil {
			return errors.Wrapf(err, "write %s", outputFile)
		}
	} else if err := output.PrintToConsole(os.Stdout, data, outputFormat); err != nil {
		return err
	}

	if saveReport {
		name, err := a.reports.Save(kind, target, text, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[+] Report saved: %s\n", name)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	scanCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", output.FormatNormal, "output format: normal, json or yaml")
	scanCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	scanCmd.PersistentFlags().BoolVar(&saveReport, "save", false, "also store the text report in the reports directory")
	scanCmd.AddCommand(scanDomainCmd, scanIPCmd, scanImageCmd)
}
