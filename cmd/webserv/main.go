// Command webserv starts the event-driven HTTP/1.1 origin server described
// in spec.md §5 from a single nginx-style configuration file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/School42/webserv/internal/config"
	"github.com/School42/webserv/internal/engine"
	"github.com/School42/webserv/internal/logging"
)

var argv struct {
	help    bool
	logFile string
}

func init() {
	flag.BoolVar(&argv.help, "h", false, "show this help")
	flag.StringVar(&argv.logFile, "log", "", "path to a log file (stderr only if empty)")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: webserv <config_file>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if argv.help {
		flag.Usage()
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	configPath := flag.Arg(0)
	if filepath.Ext(configPath) != ".conf" {
		fmt.Fprintf(os.Stderr, "webserv: config file must have a .conf suffix, got %q\n", configPath)
		os.Exit(1)
	}

	logging.Init(argv.logFile)
	log := logging.For("main")

	servers, err := config.Load(configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}

	e, err := engine.New(servers)
	if err != nil {
		log.Errorf("init engine: %v", err)
		os.Exit(1)
	}
	defer e.Close()

	if err := e.Start(); err != nil {
		log.Errorf("bind listeners: %v", err)
		os.Exit(1)
	}

	// A CGI child's stdin pipe closing before the script reads it would
	// otherwise deliver SIGPIPE to this process instead of just failing
	// the write, per spec.md §4.I's "Shared-resource policy".
	signal.Ignore(syscall.SIGPIPE)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Info("shutting down")
		e.Stop()
	}()

	log.Infof("webserv ready, config %s", configPath)
	e.Run()
}
