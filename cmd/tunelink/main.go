package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/dval/tunelink/internal/bridge"
	"github.com/dval/tunelink/internal/config"
	"github.com/dval/tunelink/internal/launcher"
	"github.com/dval/tunelink/internal/protocol"
	"github.com/dval/tunelink/internal/transport"
)

var (
	configPath = pflag.String("config", getDefaultConfigPath(), "Path to configuration file")
	addr       = pflag.String("addr", "", "Playback daemon address (overrides config)")
	launch     = pflag.Bool("launch", false, "Launch the playback daemon before connecting")
	monitor    = pflag.Bool("monitor", false, "Keep running and report playback state")
)

func main() {
	pflag.Usage = usage
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(lvl)
	}

	if *addr != "" {
		cfg.Daemon.Address = *addr
	}

	var daemon *launcher.Launcher
	if cfg.Daemon.Path != "" {
		daemon = launcher.New(cfg.Daemon.Path, cfg.Daemon.Args...)
	}
	if *launch {
		if daemon == nil {
			logrus.Fatal("No daemon path configured, cannot launch")
		}
		if err := daemon.Start(); err != nil {
			logrus.Fatalf("Failed to launch playback daemon: %v", err)
		}
	}

	connector := &transport.TCPConnector{
		Addr:    cfg.Daemon.Address,
		Timeout: cfg.DialTimeout(),
	}
	b := bridge.New(connector)
	b.SetQueueLimit(cfg.Bridge.QueueSendLimit)
	b.SetRefreshInterval(cfg.RefreshInterval())
	if daemon != nil {
		b.SetLauncher(daemon)
	}

	// The daemon may still be starting up after --launch; retry briefly.
	for attempt := 0; b.Error() != bridge.ErrorNone && *launch && attempt < 10; attempt++ {
		time.Sleep(200 * time.Millisecond)
		b.Reconnect()
	}
	if state := b.Error(); state == bridge.ErrorDifferentVersion {
		logrus.Fatalf("Playback daemon speaks a different protocol version (application has %d)", protocol.Version)
	} else if state != bridge.ErrorNone {
		logrus.Fatalf("Unable to reach playback daemon at %s: %s", cfg.Daemon.Address, state)
	}

	go b.Process()
	defer b.Close()

	args := pflag.Args()
	if len(args) == 0 || *monitor {
		runMonitor(b)
		return
	}
	if err := runCommand(b, args); err != nil {
		logrus.Fatalf("Command failed: %v", err)
	}
}

// runMonitor keeps the bridge alive, reconnecting when the connection drops
// and reporting playback state until interrupted.
func runMonitor(b *bridge.Bridge) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			logrus.Info("Shutting down")
			return

		case <-ticker.C:
			// Reconnect if we've lost the connection; the worker loop
			// resumes on its own once the bridge is healthy again.
			if b.Error() == bridge.ErrorLostConnection {
				logrus.Warn("Lost connection to playback daemon, reconnecting")
				b.Reconnect()
				continue
			}
			if b.QueueChanged() {
				logrus.Infof("Queue changed: %d song(s)", b.QueueSize())
			}
			if b.SubQueueChanged() {
				logrus.Infof("Up-next queue changed: %d song(s)", b.SubQueueSize())
			}
			printStatus(b)
		}
	}
}

func runCommand(b *bridge.Bridge, args []string) error {
	// One-shot commands wait for their round trip rather than fire-and-forget.
	wait := func(done <-chan error) error {
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timed out waiting for the daemon")
		}
	}

	switch args[0] {
	case "status":
		// Let a couple of refresh cycles populate the mirror first.
		time.Sleep(300 * time.Millisecond)
		printStatus(b)
		return nil
	case "resume":
		return wait(b.SendResume())
	case "pause":
		return wait(b.SendPause())
	case "next":
		return wait(b.SendNext())
	case "previous":
		return wait(b.SendPrevious())
	case "mute":
		return wait(b.SendMute())
	case "unmute":
		return wait(b.SendUnmute())
	case "volume":
		if len(args) < 2 {
			return fmt.Errorf("volume requires a value (0-100)")
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q", args[1])
		}
		return wait(b.SendSetVolume(v))
	case "seek":
		if len(args) < 2 {
			return fmt.Errorf("seek requires a position in seconds")
		}
		pos, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q", args[1])
		}
		return wait(b.SendSetPosition(pos))
	case "repeat":
		if len(args) < 2 {
			return fmt.Errorf("repeat requires a mode (off, one, all)")
		}
		var mode protocol.Repeat
		switch args[1] {
		case "off":
			mode = protocol.RepeatOff
		case "one":
			mode = protocol.RepeatOne
		case "all":
			mode = protocol.RepeatAll
		default:
			return fmt.Errorf("invalid repeat mode %q", args[1])
		}
		return wait(b.SendSetRepeat(mode))
	case "shuffle":
		if len(args) < 2 {
			return fmt.Errorf("shuffle requires a mode (on, off)")
		}
		mode := protocol.ShuffleOff
		if args[1] == "on" {
			mode = protocol.ShuffleOn
		}
		return wait(b.SendSetShuffle(mode))
	case "reset":
		return b.WaitReset()
	case "reload":
		return wait(b.SendReloadConfig())
	case "terminate":
		return b.Terminate()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(b *bridge.Bridge) {
	from := b.PlayingFrom()
	if from == "" {
		from = "-"
	}
	fmt.Printf("%s song %d at %.1fs, volume %.0f%%, repeat %s, shuffle %s, playing from %s, queue %d (+%d up next)\n",
		b.Status(), b.CurrentSong(), b.Position(), b.Volume(),
		b.RepeatMode(), b.ShuffleMode(), from, b.QueueSize(), b.SubQueueSize())
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] [command]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  status                 Print the current playback state\n")
	fmt.Fprintf(os.Stderr, "  resume | pause         Control playback\n")
	fmt.Fprintf(os.Stderr, "  next | previous        Skip within the queue\n")
	fmt.Fprintf(os.Stderr, "  volume <0-100>         Set the volume\n")
	fmt.Fprintf(os.Stderr, "  mute | unmute          Toggle audio\n")
	fmt.Fprintf(os.Stderr, "  seek <seconds>         Seek within the current song\n")
	fmt.Fprintf(os.Stderr, "  repeat <off|one|all>   Set the repeat mode\n")
	fmt.Fprintf(os.Stderr, "  shuffle <on|off>       Set the shuffle mode\n")
	fmt.Fprintf(os.Stderr, "  reset                  Reset the daemon's playback state\n")
	fmt.Fprintf(os.Stderr, "  reload                 Ask the daemon to re-read its config\n")
	fmt.Fprintf(os.Stderr, "  terminate              Stop the playback daemon\n")
	fmt.Fprintf(os.Stderr, "\nWithout a command the bridge runs in monitor mode.\n\nOptions:\n")
	pflag.PrintDefaults()
}

func getDefaultConfigPath() string {
	// Check common locations
	locations := []string{
		"./tunelink.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "tunelink", "config.yaml"),
		"/etc/tunelink/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Default to first location if none exist
	return locations[0]
}
