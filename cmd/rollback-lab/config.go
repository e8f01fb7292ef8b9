package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// appConfig carries every flag rollback-lab accepts, mirroring the
// flag+env-override pattern of the can-server reference command.
type appConfig struct {
	mode        string // "host" | "join" | "spectator" | "synctest"
	listenAddr  string
	remoteAddr  string
	numPlayers  int
	frameDelay  int
	logFormat   string
	logLevel    string
	metricsAddr string
	mdnsEnable  bool
	mdnsName    string
	tickRate    int
	checkDist   int
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	mode := flag.String("mode", "synctest", "Session mode: host|join|spectator|synctest")
	listen := flag.String("listen", ":7777", "UDP listen address for host/join/spectator modes")
	remote := flag.String("remote", "", "Remote UDP address to connect to (join/spectator modes)")
	numPlayers := flag.Int("players", 2, "Number of simulation players (2-4)")
	frameDelay := flag.Int("frame-delay", 2, "Local input delay in frames")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement when hosting")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default rollback-lab-<hostname>)")
	tickRate := flag.Int("tick-rate", 60, "Simulation ticks per second")
	checkDist := flag.Int("check-distance", 8, "Synctest rewind-and-replay interval, in frames")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.mode = *mode
	cfg.listenAddr = *listen
	cfg.remoteAddr = *remote
	cfg.numPlayers = *numPlayers
	cfg.frameDelay = *frameDelay
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.tickRate = *tickRate
	cfg.checkDist = *checkDist

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	switch c.mode {
	case "host", "join", "spectator", "synctest":
	default:
		return fmt.Errorf("invalid mode: %s", c.mode)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.numPlayers < 2 || c.numPlayers > 4 {
		return fmt.Errorf("players must be in [2,4] (got %d)", c.numPlayers)
	}
	if c.frameDelay < 0 {
		return fmt.Errorf("frame-delay must be >= 0")
	}
	if c.tickRate <= 0 {
		return fmt.Errorf("tick-rate must be > 0")
	}
	if (c.mode == "join" || c.mode == "spectator") && c.remoteAddr == "" {
		return fmt.Errorf("mode %q requires -remote", c.mode)
	}
	return nil
}

// applyEnvOverrides maps ROLLBACK_LAB_* environment variables onto cfg
// unless the corresponding flag was explicitly set, matching the can-server
// reference command's override precedence (flag wins over env).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["mode"]; !ok {
		if v, ok := get("ROLLBACK_LAB_MODE"); ok && v != "" {
			c.mode = v
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("ROLLBACK_LAB_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["remote"]; !ok {
		if v, ok := get("ROLLBACK_LAB_REMOTE"); ok && v != "" {
			c.remoteAddr = v
		}
	}
	if _, ok := set["players"]; !ok {
		if v, ok := get("ROLLBACK_LAB_PLAYERS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.numPlayers = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid ROLLBACK_LAB_PLAYERS: %w", err)
			}
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ROLLBACK_LAB_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("ROLLBACK_LAB_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["tick-rate"]; !ok {
		if v, ok := get("ROLLBACK_LAB_TICK_RATE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.tickRate = n
			} else if firstErr == nil && err != nil {
				firstErr = fmt.Errorf("invalid ROLLBACK_LAB_TICK_RATE: %w", err)
			}
		}
	}
	return firstErr
}
