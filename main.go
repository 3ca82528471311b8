package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Load CoreDNS + hostrep plugins
	_ "github.com/ipshipyard/hostrep/plugins"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coredns/coredns/core/dnsserver"
	"github.com/coredns/coredns/coremain"
	clog "github.com/coredns/coredns/plugin/pkg/log"

	"github.com/joho/godotenv"
)

var hostrepDirectives = []string{
	"hostsblock",
}

func init() {
	// Add custom plugins before 'file' so blocked names are answered before
	// static records loaded via 'file', which does not support fallthrough
	// https://github.com/coredns/coredns/blob/v1.11.3/plugin.cfg
	for i, d := range dnsserver.Directives {
		if d == "file" {
			ds := make([]string, 0, len(dnsserver.Directives)+len(hostrepDirectives))
			ds = append(ds, dnsserver.Directives[:i]...)
			ds = append(ds, hostrepDirectives...)
			ds = append(ds, dnsserver.Directives[i:]...)
			dnsserver.Directives = ds
			break
		}
	}
	clog.Debugf("updated directives: %v", dnsserver.Directives)
}

// shouldShowUsageGuidance detects when Corefile is missing the hostsblock plugin
func shouldShowUsageGuidance() bool {
	return shouldShowUsageGuidanceWithOptions(os.Args[1:], ".")
}

// shouldShowUsageGuidanceWithOptions is a testable version that accepts custom args and working directory
func shouldShowUsageGuidanceWithOptions(args []string, workDir string) bool {
	confFile := getConfigFileFromArgs(args)
	if confFile == "" {
		defaultCorefile := filepath.Join(workDir, "Corefile")
		if _, err := os.Stat(defaultCorefile); os.IsNotExist(err) {
			return true
		}
		confFile = defaultCorefile
	} else if !filepath.IsAbs(confFile) {
		confFile = filepath.Join(workDir, confFile)
	}

	return isMissingHostsBlockPlugin(confFile)
}

// getConfigFileFromArgs returns the value of the -conf flag, if any
func getConfigFileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "-conf" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// isMissingHostsBlockPlugin checks if the config file never enables hostsblock
func isMissingHostsBlockPlugin(filename string) bool {
	content, err := os.ReadFile(filename)
	if err != nil {
		// If we can't read the file, let CoreDNS handle the error
		return false
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == "hostsblock" {
			return false
		}
	}
	return true
}

func main() {
	fmt.Printf("%s %s\n", name, version) // always print version
	registerVersionMetric()
	err := godotenv.Load()
	if err == nil {
		fmt.Println(".env found and loaded")
	}

	if shouldShowUsageGuidance() {
		fmt.Fprintf(os.Stderr, "\nError: Configuration issue detected.\n\n")
		fmt.Fprintf(os.Stderr, "hostrep requires a Corefile with the 'hostsblock' plugin.\n")
		fmt.Fprintf(os.Stderr, "This error occurs when running without a proper Corefile or with\n")
		fmt.Fprintf(os.Stderr, "a generic CoreDNS config missing hostrep-specific plugins.\n\n")
		fmt.Fprintf(os.Stderr, "Minimal Corefile:\n")
		fmt.Fprintf(os.Stderr, "  . {\n      hostsblock {\n          listen-address :8080\n      }\n      forward . 1.1.1.1\n  }\n\n")
		fmt.Fprintf(os.Stderr, "Local development:\n")
		fmt.Fprintf(os.Stderr, "  ./hostrep -conf Corefile -dns.port 5354\n")
		os.Exit(1)
	}

	coremain.Run()
}

func registerVersionMetric() {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "coredns",
		Subsystem:   "hostrep",
		Name:        "info",
		Help:        "Information about hostrep instance.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	prometheus.MustRegister(m)
	m.Set(1)
}
