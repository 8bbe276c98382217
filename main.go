package main

import (
	"context"
	"flag"
	"fmt"

	"przelewy/config"
	"przelewy/entity"
	"przelewy/internal"
	"przelewy/services"
)

func main() {

	logger := internal.NewLogger("main", false, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		return
	}

	var mongo services.Database
	if conf.Mongo.Enabled {
		mongo, err = internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return
		}
		logger.Info("mongo client initialized")
	}

	client := internal.NewClient(conf)

	payments := internal.NewPayments(conf, client)
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, mongo))
	payments.SetDatabase(mongo)
	// The host state machine hooks in here; without one, triggers are
	// only logged.
	triggerLogger := internal.NewLogger("lifecycle", conf.IsDebug, mongo)
	payments.SetTriggerHandler(func(ctx context.Context, event *entity.LifecycleEvent) {
		triggerLogger.Info(fmt.Sprintf("trigger %s: session %s; order %d; amount %d %s",
			event.Trigger, event.SessionID, event.OrderID, event.Amount, event.Currency))
	})

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, mongo))
	server.SetPaymentsService(payments)
	server.SetGateway(client)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return
	}

}
