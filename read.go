package main

import (
	"context"
	"fmt"

	"github.com/prometheus/common/log"

	"github.com/markuslindenberg/mb8600_exporter/sink"
)

// openSinks connects every sink that has been configured. The returned func
// releases them.
func openSinks(influxCfg sink.InfluxConfig, mqttCfg sink.MQTTConfig) (sink.Multi, func(), error) {
	var (
		sinks   sink.Multi
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if influxCfg.URL != "" {
		influx, err := sink.NewInflux(influxCfg)
		if err != nil {
			return nil, nil, err
		}
		log.Infoln("Writing to InfluxDB at", influxCfg.URL)
		sinks = append(sinks, influx)
		closers = append(closers, influx.Close)
	}

	if mqttCfg.Broker != "" {
		mqtt, err := sink.DialMQTT(mqttCfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, mqtt)
		closers = append(closers, mqtt.Close)
	}

	if len(sinks) == 0 {
		closeAll()
		return nil, nil, fmt.Errorf("no sink configured, set --influxdb.url or --mqtt.broker")
	}
	return sinks, closeAll, nil
}

// read polls the modem once and hands every decoded record to s. Tables that
// fail to decode are logged and skipped.
func read(ctx context.Context, modem modemConfig, s sink.Sink) error {
	ctx, cancel := context.WithTimeout(ctx, modem.pollTimeout())
	defer cancel()

	client, err := modem.newClient(modem.roundTripper())
	if err != nil {
		return err
	}
	raw, err := poll(ctx, client)
	if err != nil {
		return err
	}

	snap, errs := decode(raw, client.Location())
	for _, err := range errs {
		log.Errorln(err)
	}

	if err := sink.IngestSnapshot(ctx, s, snap); err != nil {
		return err
	}
	log.Infof("Ingested %d logs, %d downstream and %d upstream channels", len(snap.Logs), len(snap.Downstream), len(snap.Upstream))
	return nil
}
