// Package main: wallet service.
//
// The service serves the RESTful API of the wallet package on the configured ports. The database keeps the account
// profiles (nominee emails), the blockchain client reads balances and the inheritance registry, and the message
// broker carries the nominee events.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentrywallet/sentry/lib/block"
	"github.com/sentrywallet/sentry/lib/config"
	"github.com/sentrywallet/sentry/lib/logging"
	"github.com/sentrywallet/sentry/lib/msg"
	"github.com/sentrywallet/sentry/lib/msg/amqp"
	"github.com/sentrywallet/sentry/lib/store"
	"github.com/sentrywallet/sentry/lib/store/db"
	"github.com/sentrywallet/sentry/wallet"
	"github.com/tarancss/hd"
)

const (
	brokerRetry    = 10 * time.Second
	metricsTimeout = 5 * time.Second
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to expose metrics for Prometheus on the metrics port")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(conf.LogLevel)
	if err != nil {
		panic(err)
	}

	defer func() { _ = log.Sync() }()

	log.Infow("Configuration", "dbtype", conf.DBType, "port", conf.Port, "mbtype", conf.MbType,
		"blockchain", conf.Bc.Name, "node", conf.Bc.Node, "registry", conf.Bc.Registry)

	// connect to database
	var dbConn store.DB

	if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
		log.Fatalf("Cannot connect to %s database: %v", conf.DBType, err)
	}

	log.Infof("Connected to %s database", conf.DBType)

	// connect to the blockchain
	bc, err := block.Init(context.Background(), conf.Bc)
	if err != nil {
		log.Fatalf("Cannot load blockchain client: %v", err)
	}

	if !bc.HasRegistry() {
		log.Warnf("[%s] No registry contract configured, nominees are only saved off-chain", conf.Bc.Name)
	}

	log.Infof("[%s] Blockchain client loaded", conf.Bc.Name)

	// load Prometheus monitor
	if *monitor {
		go serveMetrics(log, conf.MetricsPort)
	}

	// load message broker
	mb := broker(log, conf)

	// load HD wallet
	seed, err := hex.DecodeString(conf.Seed)
	if err != nil {
		log.Fatalf("Cannot decode HD wallet seed: %v", err)
	}

	hdw, err := hd.Init(seed)
	if err != nil {
		log.Fatalf("Cannot load HD wallet: %v", err)
	}

	// create wallet service
	w := wallet.New(conf.DBType, dbConn, mb, conf.Bc.Name, bc, hdw, log)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		w.Stop()
	}()

	// manage nominee events
	if err := w.ManageEvents(); err != nil {
		log.Errorf("Error setting up broker readers for events:%v", err)
	}

	// init RESTful API, wait for its return and log response
	log.Infof("Wallet: %s", w.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))
}

func serveMetrics(log *zap.SugaredLogger, port string) {
	log.Infof("Serving metrics API on :%s", port)

	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + port, Handler: h, ReadHeaderTimeout: metricsTimeout}
	if err := srv.ListenAndServe(); err != nil {
		log.Errorf("Metrics API stopped: %v", err)
	}
}

// broker connects to the message broker, retrying once after 10s to let it come up. It returns nil when no known
// broker is configured.
func broker(log *zap.SugaredLogger, conf config.ServiceConfig) msg.MsgBroker {
	switch conf.MbType {
	case "amqp":
		mb, err := amqp.New(conf.MbConn, log)
		if err != nil {
			log.Warnf("Cannot connect to message broker, retrying in %v: %v", brokerRetry, err)
			time.Sleep(brokerRetry)

			if mb, err = amqp.New(conf.MbConn, log); err != nil {
				log.Fatalf("Cannot connect to message broker: %v", err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			log.Fatalf("Cannot set up message broker: %v", err)
		}

		return mb
	default:
		log.Warnf("Unknown message broker type: %s, nominee events are not published", conf.MbType)
	}

	return nil
}
