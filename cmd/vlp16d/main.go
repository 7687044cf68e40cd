// vlp16d receives Velodyne VLP-16 UDP packets, decodes them into a rolling
// 3D point cloud and serves the cloud snapshot plus ingest statistics over
// HTTP for external visualisation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pointcloud.live/internal/config"
	"github.com/banshee-data/pointcloud.live/internal/lidar/cloud"
	"github.com/banshee-data/pointcloud.live/internal/lidar/monitor"
	"github.com/banshee-data/pointcloud.live/internal/lidar/network"
	"github.com/banshee-data/pointcloud.live/internal/lidar/recorder"
	"github.com/banshee-data/pointcloud.live/internal/lidar/vlp16"
	"github.com/banshee-data/pointcloud.live/internal/version"
)

var (
	listen         = flag.String("listen", "", "HTTP listen address (default from config, :8081)")
	udpPort        = flag.Int("udp-port", 0, "UDP port to listen for lidar packets (default 2368)")
	udpAddress     = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf         = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes (default 4MB)")
	capacity       = flag.Int("rotations", 0, "Rotation batches to retain before evicting the oldest (default 40000)")
	logInterval    = flag.Duration("log-interval", 0, "Statistics logging interval (default 1m)")
	forwardPackets = flag.Bool("forward", false, "Forward received UDP packets to another destination")
	forwardAddr    = flag.String("forward-addr", "", "Address to forward UDP packets to (default localhost)")
	forwardPort    = flag.Int("forward-port", 0, "Port to forward UDP packets to (default 2368)")
	recordPackets  = flag.Bool("record", false, "Record raw packets to a PCAP capture file")
	recordDir      = flag.String("record-dir", "", "Directory for capture files (default system temp)")
	pcapFile       = flag.String("pcap-file", "", "Replay packets from a PCAP file instead of listening on UDP")
	pcapRealtime   = flag.Bool("pcap-realtime", false, "Replay PCAP with original packet timing")
	pcapSpeed      = flag.Float64("pcap-speed", 1.0, "Real-time replay speed multiplier")
	configFile     = flag.String("config", "", "Path to JSON service configuration file")
)

func main() {
	flag.Parse()

	cfg := &config.ServiceConfig{}
	if *configFile != "" {
		loaded, err := config.LoadServiceConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
		cfg = loaded
		log.Printf("Loaded service configuration from %s", *configFile)
	}

	// Flags override the config file.
	httpListen := cfg.GetHTTPListen()
	if *listen != "" {
		httpListen = *listen
	}
	port := cfg.GetUDPPort()
	if *udpPort != 0 {
		port = *udpPort
	}
	bindAddr := cfg.GetUDPAddress()
	if *udpAddress != "" {
		bindAddr = *udpAddress
	}
	bufSize := cfg.GetRcvBuf()
	if *rcvBuf != 0 {
		bufSize = *rcvBuf
	}
	rotations := cfg.GetRotationCapacity()
	if *capacity != 0 {
		rotations = *capacity
	}
	statsInterval := cfg.GetLogInterval()
	if *logInterval != 0 {
		statsInterval = *logInterval
	}

	udpListenAddr := fmt.Sprintf("%s:%d", bindAddr, port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := monitor.NewPacketStats()
	buffer := cloud.NewRotationBuffer(rotations)
	decoder := vlp16.NewDecoder(stats)

	var forwarder *network.PacketForwarder
	if *forwardPackets || cfg.GetForwardEnabled() {
		addr := cfg.GetForwardAddress()
		if *forwardAddr != "" {
			addr = *forwardAddr
		}
		fport := cfg.GetForwardPort()
		if *forwardPort != 0 {
			fport = *forwardPort
		}

		var err error
		forwarder, err = network.NewPacketForwarder(addr, fport, stats, statsInterval)
		if err != nil {
			log.Fatalf("Failed to set up packet forwarding: %v", err)
		}
		log.Printf("Forwarding packets to %s", forwarder.Address())
	}

	var capture *recorder.Recorder
	if *recordPackets || cfg.GetRecordEnabled() {
		dir := cfg.GetRecordDir()
		if *recordDir != "" {
			dir = *recordDir
		}

		var err error
		capture, err = recorder.NewRecorder(dir, port)
		if err != nil {
			log.Fatalf("Failed to set up packet recording: %v", err)
		}
		defer capture.Close()
	}

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     udpListenAddr,
		RcvBuf:      bufSize,
		LogInterval: statsInterval,
		Stats:       stats,
		Forwarder:   forwarder,
		Decoder:     decoder,
		Accumulator: buffer,
		Recorder:    capture,
	})

	webserver := monitor.NewWebServer(monitor.WebServerConfig{
		Address: httpListen,
		Stats:   stats,
		Cloud:   buffer,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if *pcapFile != "" {
			if forwarder != nil {
				forwarder.Start(ctx)
			}
			err = network.ReplayPCAPFile(ctx, *pcapFile, network.ReplayConfig{
				UDPPort:         port,
				Realtime:        *pcapRealtime,
				SpeedMultiplier: *pcapSpeed,
			}, listener)
			stats.LogStats()
		} else {
			err = listener.Start(ctx)
		}
		if err != nil && err != context.Canceled {
			log.Printf("Packet source error: %v", err)
		}
		log.Print("Packet source routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webserver.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("vlp16d %s started: UDP %s, HTTP %s, retaining %s rotations",
		version.String(), udpListenAddr, httpListen, monitor.FormatWithCommas(int64(rotations)))

	<-ctx.Done()
	log.Print("Shutting down...")

	// Give routines a moment to observe cancellation before exiting.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Print("Shutdown timed out, exiting")
	}
}
