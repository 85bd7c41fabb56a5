package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
	"golang.org/x/crypto/ssh/terminal"
)

const version = "0.3.1"

var log *logrus.Logger

// Config : CLI args
type Config struct {
	URL            string `arg:"-s,--server" help:"vCenter or ESXi URL, e.g. https://vcenter.example.com/sdk"`
	Username       string `arg:"-u" help:"username"`
	Password       string `arg:"-p" help:"password"`
	Insecure       bool   `arg:"-k,--insecure" help:"skip TLS certificate verification"`
	Output         string `arg:"-o" help:"report output directory"`
	Snapshot       string `arg:"--snapshot" help:"Snapshot file"`
	Verbose        bool   `arg:"-v"`
	RequestTimeout int    `arg:"--request-timeout" help:"SOAP request timeout in seconds"`
}

// Description : App description for CLI interface
func (Config) Description() string {
	return "Generate per-host network configuration reports from vCenter"
}

// Version : App version string for CLI interface
func (Config) Version() string {
	return fmt.Sprintf("netreport version %s", version)
}

func input(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.Trim(input, "\r\n")
}

func newConfigFromCLI() Config {
	cfg := Config{
		Output:         "reports",
		Snapshot:       "snapshot.json",
		RequestTimeout: 30,
	}
	arg.MustParse(&cfg)
	if cfg.URL == "" {
		cfg.URL = input("vCenter URL:")
	}
	if cfg.Username == "" {
		cfg.Username = input("Username:")
	}
	if cfg.Password == "" {
		fmt.Print("Password: ")
		pwd, _ := terminal.ReadPassword(int(syscall.Stdin))
		cfg.Password = string(pwd)
		fmt.Println()
	}
	return cfg
}

func buildHostReport(client *vcClient, inv *inventory, host mo.HostSystem, generated time.Time) (*hostTopology, error) {
	if host.Runtime.ConnectionState != types.HostSystemConnectionStateConnected {
		return nil, fmt.Errorf("host is %s", host.Runtime.ConnectionState)
	}
	if host.Config == nil || host.Config.Network == nil {
		return nil, errors.New("host reports no network configuration")
	}
	hints, err := client.networkHints(host)
	if err != nil {
		// Optional data; adapters render with an empty neighbor column.
		log.WithFields(logrus.Fields{
			"host":  host.Name,
			"error": err.Error(),
		}).Warn("Neighbor discovery hints unavailable")
		hints = nil
	}
	topo := buildTopology(host, inv.dvSwitches, inv.dvPortgroups, hints)
	topo.Generated = generated
	return topo, nil
}

// generateReports writes one report per host into dir. A failing host is
// logged and skipped; the remaining hosts are still reported.
func generateReports(client *vcClient, inv *inventory, dir string, generated time.Time) []*hostTopology {
	used := make(map[string]bool, len(inv.hosts))
	var topologies []*hostTopology
	for _, host := range inv.hosts {
		topo, err := buildHostReport(client, inv, host, generated)
		if err != nil {
			log.WithFields(logrus.Fields{
				"host":  host.Name,
				"error": err.Error(),
			}).Error("Skipping host")
			continue
		}
		path := filepath.Join(dir, uniqueReportFileName(topo.Name, used))
		if err := saveReport(path, topo); err != nil {
			log.WithFields(logrus.Fields{
				"host":  topo.Name,
				"error": err.Error(),
			}).Error("Skipping host")
			continue
		}
		log.WithFields(logrus.Fields{
			"host":   topo.Name,
			"report": path,
		}).Info("Report written")
		topologies = append(topologies, topo)
	}
	return topologies
}

func run(cfg *Config) error {
	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.URL, err)
	}
	defer client.logout()
	log.Info(fmt.Sprintf("Connected to %s", client.version()))

	inv, err := client.inventory()
	if err != nil {
		return fmt.Errorf("fetching inventory: %w", err)
	}
	log.WithFields(logrus.Fields{
		"hosts":                len(inv.hosts),
		"distributed switches": len(inv.dvSwitches),
	}).Info("Inventory fetched")

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return err
	}

	generated := time.Now()
	topologies := generateReports(client, inv, cfg.Output, generated)
	if len(topologies) == 0 {
		return fmt.Errorf("no reports generated for %d host(s)", len(inv.hosts))
	}

	verifySnapshot(cfg.Snapshot, topologies)
	if err := writeSnapshot(cfg.Snapshot, topologies, generated); err != nil {
		log.WithFields(logrus.Fields{
			"file":  cfg.Snapshot,
			"error": err.Error(),
		}).Warn("Failed to write snapshot")
	}

	log.Info(fmt.Sprintf("%d of %d host report(s) generated.",
		len(topologies), len(inv.hosts)))
	return nil
}

func main() {
	cfg := newConfigFromCLI()
	log = newLogger(&cfg)
	if err := run(&cfg); err != nil {
		log.Fatal(err)
	}
}
