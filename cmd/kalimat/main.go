package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ayusman/kalimat/internal/app"
	"github.com/ayusman/kalimat/internal/capture"
	"github.com/ayusman/kalimat/internal/classifier"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
	"github.com/ayusman/kalimat/internal/emitter"
	"github.com/ayusman/kalimat/internal/plugin"
	"github.com/ayusman/kalimat/internal/server"
	"github.com/ayusman/kalimat/internal/store"
	"github.com/ayusman/kalimat/internal/tray"
)

func main() {
	fmt.Println("Kalimat - Gesture to Sentence")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := config.NewRuntime()
	if err := rt.Apply(cfg.Runtime); err != nil {
		log.Fatalf("Invalid runtime settings: %v", err)
	}

	appCfg := app.Config{
		Runtime: rt,
		Engine: confirm.Options{
			MaxSentenceLength: cfg.MaxSentenceLength,
			MaxLogSize:        cfg.MaxLogSize,
		},
		StreamFPS: cfg.StreamFPS,
	}

	// Settings changed at runtime survive restarts and win over the config
	// file and environment. Explicit command-line flags win over both.
	var sessions *store.SessionRepository
	if cfg.Persist {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		st, err := store.New(cfg.DBPath())
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		defer st.Close()

		if err := st.Settings().LoadRuntime(rt); err != nil {
			log.Printf("Failed to load saved settings: %v", err)
		}
		if err := cfg.ApplyRuntimeFlags(rt); err != nil {
			log.Fatalf("Invalid runtime flags: %v", err)
		}
		appCfg.Settings = st.Settings()
		sessions = st.Sessions()
		appCfg.Sessions = sessions
	}

	mp, err := classifier.NewMediaPipeClassifier(classifier.Config{ModelPath: cfg.ModelPath})
	if err != nil {
		log.Printf("Warning: %v; predictions will report %q and the stream is disabled", err, confirm.ModelError)
	} else {
		appCfg.Classifier = mp
		log.Printf("Using MediaPipe gesture recognizer (%s)", cfg.ModelPath)
	}

	source := capture.NewSource(capture.NewCamera(cfg.CameraID), rt)
	if err := source.Open(); err != nil {
		log.Printf("Camera %d not ready yet: %v", cfg.CameraID, err)
	}
	appCfg.Source = source

	a := app.New(appCfg)
	log.Printf("Session %s started", a.Session())

	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqttEmitter = emitter.NewMQTTEmitter(cfg.MQTT, "kalimat-"+a.Session())
		if err := mqttEmitter.Connect(ctx); err != nil {
			log.Printf("MQTT broker not reachable yet, will keep retrying: %v", err)
		}
		a.AddSink(mqttEmitter)
	}

	plugins := plugin.NewManager(cfg.PluginDir)
	if err := plugins.Discover(); err != nil {
		log.Printf("Failed to discover plugins in %s: %v", cfg.PluginDir, err)
	}
	if n := len(plugins.List()); n > 0 {
		log.Printf("Loaded %d plugin(s) from %s", n, cfg.PluginDir)
		a.AddSink(plugin.NewDispatcher(plugins, plugin.NewExecutor(plugin.DefaultTimeout)))
	}

	if cfg.Path != "" {
		go func() {
			err := config.Watch(ctx, cfg.Path, func(c *config.Config) {
				if err := a.ApplyRuntime(c.Runtime); err != nil {
					log.Printf("Ignoring reloaded settings: %v", err)
					return
				}
				log.Printf("Reloaded settings from %s", cfg.Path)
			})
			if err != nil {
				log.Printf("Config watcher stopped: %v", err)
			}
		}()
	}

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srvCfg := server.Config{
		StaticDir: webDir,
		App:       a,
	}
	if sessions != nil {
		srvCfg.Sessions = sessions
	}
	srv := server.New(srvCfg)

	serve := func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
			log.Printf("Server failed: %v", err)
		}
		stop()
	}

	if cfg.Tray {
		t := tray.New(rt.Mirror())
		t.OnMirror(a.SetMirror)
		t.OnClear(a.ClearTranscript)
		t.OnOpen(func() { openBrowser(localURL(cfg.Addr)) })
		t.OnQuit(stop)
		a.AddSink(t)

		go serve()
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine
		t.Run()
	} else {
		serve()
	}

	<-ctx.Done()
	if mqttEmitter != nil {
		stats := mqttEmitter.Stats()
		log.Printf("MQTT: published %d confirmed and %d cleared events, %d errors",
			stats.Published[mqttEmitter.Topic(emitter.EventConfirmed)], stats.Published[mqttEmitter.Topic(emitter.EventCleared)], stats.Errors)
		mqttEmitter.Disconnect()
	}
	if err := a.Close(); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	fmt.Println("Bye")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.kalimat/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".kalimat", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

// localURL turns a listen address into a browsable URL.
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}
