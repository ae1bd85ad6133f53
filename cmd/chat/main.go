// Command chat is the murmur terminal client. It joins the shared lobby on
// startup and switches between the lobby and private rooms with slash
// commands:
//
//	/name <name>      set the display name (required before sending)
//	/dm <identity>    open a private room with another client
//	/lobby            return to the lobby
//	/who              list online users
//	/quit             leave and exit
//
// Anything else typed is published to the current room.
package main

import (
	"bufio"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/murmur/chat/internal/directory"
	"github.com/murmur/chat/internal/hosted"
	"github.com/murmur/chat/internal/identity"
	"github.com/murmur/chat/internal/mesh"
	"github.com/murmur/chat/internal/messaging"
	"github.com/murmur/chat/internal/metrics"
	"github.com/murmur/chat/internal/view"
)

func main() {
	backend := "hosted"
	if v := os.Getenv("BACKEND"); v != "" {
		backend = v
	}
	if backend != "hosted" && backend != "mesh" {
		log.Fatalf("unknown BACKEND %q (want hosted or mesh)", backend)
	}

	profilePath := identity.DefaultProfilePath()
	if v := os.Getenv("PROFILE_PATH"); v != "" {
		profilePath = v
	}

	// --- Identity ---
	profile := identity.Open(profilePath)
	defer profile.Close()

	clientID, err := profile.GetOrCreate()
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}
	name := profile.Name()
	if v := os.Getenv("DISPLAY_NAME"); v != "" {
		name = v
	}

	log.Printf("murmur chat client starting")
	log.Printf("  backend:   %s", backend)
	log.Printf("  identity:  %s", clientID)
	log.Printf("  profile:   %s (ephemeral=%v)", profilePath, profile.Ephemeral())

	// --- Metrics ---
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.Printf("  metrics:   http://%s/metrics", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		controller *view.Controller
		cleanup    func()
	)
	switch backend {
	case "hosted":
		controller, cleanup = buildHosted(ctx, profile, clientID, name)
	case "mesh":
		controller, cleanup = buildMesh(profile, clientID, name)
	}
	defer cleanup()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		controller.Quit()
		cancel()
	}()

	go readCommands(controller)

	controller.Run(ctx)
}

// buildHosted wires the hosted-store variant: Redis for room collections,
// NATS for change fan-out. Either service being unreachable degrades the
// session to an inert channel instead of aborting.
func buildHosted(ctx context.Context, profile *identity.Provider, clientID, name string) (*view.Controller, func()) {
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	window := 0
	if v := os.Getenv("ROOM_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			window = n
		}
	}

	rdb, err := hosted.Connect(redisAddr)
	if err != nil {
		log.Printf("redis unavailable, running degraded: %v", err)
	}

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	var nc *messaging.Client
	if rdb != nil {
		if nc, err = messaging.Connect(natsConfig); err != nil {
			log.Printf("nats unavailable, running degraded: %v", err)
		}
	}

	var store *hosted.Store
	if rdb != nil {
		store = hosted.NewStore(rdb, window)
	}

	session := &hostedSession{
		channel:  hosted.NewChannel(store, nc, clientID),
		profile:  profile,
		identity: clientID,
		name:     name,
	}
	controller := view.NewController(session, os.Stdout, clientID, name)
	session.controller = controller

	if rdb != nil && nc != nil {
		tracker := hosted.NewTracker(rdb, nc, hosted.Record{Sender: clientID, Name: name})
		if err := tracker.Start(ctx); err != nil {
			log.Printf("presence tracker: %v", err)
		}
		err := tracker.Subscribe(ctx, clientID, func(records []hosted.Record) {
			online := make([]view.Online, len(records))
			for i, r := range records {
				online[i] = view.Online{Sender: r.Sender, Name: r.Name}
			}
			controller.OnPresenceSet(online)
		})
		if err != nil {
			log.Printf("presence subscribe: %v", err)
		}
		session.tracker = tracker
	}

	cleanup := func() {
		session.close()
		if nc != nil {
			nc.Close()
		}
		if rdb != nil {
			rdb.Close()
		}
	}
	return controller, cleanup
}

// buildMesh wires the peer-mesh variant. Peers are discovered through a
// hosted directory service when DIRECTORY_URL is set, or over LAN mDNS
// otherwise.
func buildMesh(profile *identity.Provider, clientID, name string) (*view.Controller, func()) {
	var dir directory.Directory
	if url := os.Getenv("DIRECTORY_URL"); url != "" {
		log.Printf("  directory: %s", url)
		dir = directory.NewHTTP(url)
	} else {
		log.Printf("  directory: mdns")
		dir = directory.NewZeroconf()
	}

	config := mesh.DefaultConfig()
	if v := os.Getenv("MESH_LISTEN"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("MESH_ADVERTISE"); v != "" {
		config.AdvertiseAddr = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RefreshInterval = d
		}
	}

	session := &meshSession{
		dir:      dir,
		config:   config,
		profile:  profile,
		identity: clientID,
		name:     name,
	}
	controller := view.NewController(session, os.Stdout, clientID, name)
	session.controller = controller

	return controller, session.close
}

// readCommands translates stdin lines into controller events until EOF.
func readCommands(controller *view.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/name":
			controller.SetName(strings.TrimSpace(arg))
		case "/dm":
			target := strings.TrimSpace(arg)
			if target == "" {
				controller.OnSystem("usage: /dm <identity>")
				continue
			}
			controller.OpenDM(target)
		case "/lobby":
			controller.Lobby()
		case "/who":
			controller.Who()
		case "/quit":
			controller.Quit()
			return
		default:
			if strings.HasPrefix(cmd, "/") {
				controller.OnSystem("unknown command " + cmd)
				continue
			}
			controller.Send(line)
		}
	}
	controller.Quit()
}
