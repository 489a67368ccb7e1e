package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/usbhost/printerbridge/bridge"
	"github.com/usbhost/printerbridge/config"
	"github.com/usbhost/printerbridge/hoststack"
	"github.com/usbhost/printerbridge/joblog"
	"github.com/usbhost/printerbridge/logging"
	"github.com/usbhost/printerbridge/utils"
)

var cpuProfile bool
var tracing bool
var simulate bool

func init() {
	flag.BoolVar(&cpuProfile, "cpu-profile", cpuProfile, "enable cpu profiling")
	flag.BoolVar(&tracing, "trace", tracing, "enable tracing")
	flag.BoolVar(&simulate, "simulate", simulate, "run against a simulated printer instead of real hardware")
}

func newHost() (bridge.HostStack, func()) {
	if simulate {
		sim := hoststack.NewSimHost()
		cfg, err := hoststack.NewRawConfigBuilder(1).
			AddInterface(0, 0, 0x07, 0x01, 0x02).
			AddEndpoint(0x01, 0x02, 64).
			AddEndpoint(0x82, 0x02, 64).
			Config()
		if err != nil {
			panic(err)
		}
		sim.AddDevice("simulated printer", cfg)
		return sim, func() {}
	}
	host := hoststack.NewGousbHost()
	return host, host.Close
}

func main() {
	flag.Parse()
	if cpuProfile {
		f, err := os.Create("printerbridge.prof")
		if err != nil {
			panic(err)
		}
		if err = pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}
	if tracing {
		f, err := os.Create("printerbridge.trace")
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logging.SetupLogger()
	var jobs *joblog.Log
	if cfg.JobLog {
		if jobs, err = joblog.Open(joblog.DefaultPath()); err != nil {
			log.Println("Job log disabled:", err)
			jobs = nil
		}
	}
	host, closeHost := newHost()
	b := bridge.NewBridge(cfg, host, jobs)
	b.Start()
	utils.Wait()
	b.Stop()
	closeHost()
	if jobs != nil {
		_ = jobs.Close()
	}
}
