// Command trustpin is a thin CLI/demonstration shell over the pinning
// engine, in the teacher's cmd.NewAppShell-adjacent style: a single binary,
// one `-config` flag, and a handful of subcommands that are each a few
// lines of glue over the library.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/trustpin/trustpin-go/cmd"
	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/engine"
	"github.com/trustpin/trustpin-go/log"
)

func main() {
	configPath := flag.String("config", "", "path to a trustpin EngineConfig file (JSON or YAML)")
	interactive := flag.Bool("interactive", false, "prompt for credentials instead of reading -config")
	host := flag.String("host", "", "hostname to verify (for the verify subcommand)")
	pemFile := flag.String("pem-file", "", "path to a PEM-encoded leaf certificate (for the verify subcommand)")
	level := flag.String("level", "", "log level for set-log-level (none|error|info|debug)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: trustpin [-config file] <setup|verify|set-log-level|serve-metrics>")
		os.Exit(2)
	}
	subcommand := flag.Arg(0)

	var cfg cmd.EngineConfig
	switch {
	case *interactive:
		promptForConfig(&cfg)
	case *configPath != "":
		cmd.FailOnError(cmd.ReadConfigFile(*configPath, &cfg), "reading config")
		cmd.FailOnError(cmd.ValidateConfig(cfg), "validating config")
	default:
		cmd.FailOnError(fmt.Errorf("one of -config or -interactive is required"), "parsing flags")
	}

	scope, logger := cmd.StatsAndLogging(cfg.Syslog)

	cdnBase := cfg.TrustPin.CDNBase
	if cdnBase == "" {
		cdnBase = engine.DefaultCDNBase
	}
	eng := engine.New(engine.Config{CDNBase: cdnBase, Scope: scope, Logger: logger})

	switch subcommand {
	case "setup":
		runSetup(eng, cfg, logger)
	case "verify":
		runVerify(eng, cfg, *host, *pemFile, logger)
	case "set-log-level":
		runSetLogLevel(eng, *level)
	case "serve-metrics":
		cmd.FailOnError(cmd.ServeMetrics(cfg.Metrics.Addr), "serving metrics")
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		os.Exit(2)
	}
}

func runSetup(eng *engine.Engine, cfg cmd.EngineConfig, logger *log.Logger) {
	err := eng.Setup(cfg.TrustPin.Organization, cfg.TrustPin.Project, string(cfg.TrustPin.PublicKey), cfg.TrustPin.ModeValue())
	cmd.FailOnError(err, "setup")
	logger.Infof("setup complete for %s/%s", cfg.TrustPin.Organization, cfg.TrustPin.Project)
}

func runVerify(eng *engine.Engine, cfg cmd.EngineConfig, host, pemFile string, logger *log.Logger) {
	if host == "" || pemFile == "" {
		cmd.FailOnError(fmt.Errorf("-host and -pem-file are both required"), "parsing flags")
	}
	err := eng.Setup(cfg.TrustPin.Organization, cfg.TrustPin.Project, string(cfg.TrustPin.PublicKey), cfg.TrustPin.ModeValue())
	cmd.FailOnError(err, "setup")

	pemBytes, err := os.ReadFile(pemFile)
	cmd.FailOnError(err, "reading pem file")

	verifyErr := eng.Verify(context.Background(), host, string(pemBytes))
	if verifyErr == nil {
		fmt.Println("Ok")
		return
	}

	wire, marshalErr := berrors.MarshalWire(verifyErr)
	if marshalErr == nil {
		fmt.Fprintln(os.Stderr, string(wire))
	} else {
		fmt.Fprintln(os.Stderr, verifyErr)
	}
	os.Exit(1)
}

func runSetLogLevel(eng *engine.Engine, levelFlag string) {
	if levelFlag == "" {
		cmd.FailOnError(fmt.Errorf("-level is required"), "parsing flags")
	}
	parsed, err := log.ParseLevel(levelFlag)
	cmd.FailOnError(err, "parsing -level")
	eng.SetLogLevel(parsed)
}

// promptForConfig interactively collects the fields of a TrustPinConfig.
// The public key is read with no-echo via golang.org/x/term, since some
// terminals are shared/logged and a caller may not want their project's
// signing key visible in scrollback even though it is not itself secret.
func promptForConfig(cfg *cmd.EngineConfig) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("organization id: ")
	org, _ := reader.ReadString('\n')
	fmt.Print("project id: ")
	project, _ := reader.ReadString('\n')
	fmt.Print("mode [Strict/Permissive] (default Strict): ")
	mode, _ := reader.ReadString('\n')

	fmt.Print("public key (base64 SPKI, input hidden): ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	cmd.FailOnError(err, "reading public key")

	cfg.TrustPin.Organization = strings.TrimSpace(org)
	cfg.TrustPin.Project = strings.TrimSpace(project)
	cfg.TrustPin.Mode = strings.TrimSpace(mode)
	cfg.TrustPin.PublicKey = cmd.ConfigSecret(strings.TrimSpace(string(keyBytes)))
}
