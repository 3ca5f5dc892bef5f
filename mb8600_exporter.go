package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/log"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/markuslindenberg/mb8600_exporter/sink"
)

const (
	exporterName = "mb8600_exporter"
	namespace    = "mb8600"
)

func main() {
	var (
		modemHostname = kingpin.Flag("modem.hostname", "Hostname or address of the MB8600.").Default("192.168.100.1").OverrideDefaultFromEnvar("MOTO_HOSTNAME").String()
		modemUsername = kingpin.Flag("modem.username", "Username for the MB8600 web interface.").Default("admin").OverrideDefaultFromEnvar("MOTO_USERNAME").String()
		modemPassword = kingpin.Flag("modem.password", "Password for the MB8600 web interface.").Default("motorola").OverrideDefaultFromEnvar("MOTO_PASSWORD").String()
		modemTimezone = kingpin.Flag("modem.timezone", "Time zone the MB8600 event log is written in.").Default("UTC").OverrideDefaultFromEnvar("TZ").String()
		modemInsecure = kingpin.Flag("modem.insecure", "Skip verification of the MB8600's self-signed TLS certificate.").Default("true").Bool()
		clientTimeout = kingpin.Flag("client.timeout", "Timeout for HNAP requests to the MB8600.").Default("30s").OverrideDefaultFromEnvar("MB8600_EXPORTER_CLIENTTIMEOUT").Duration()

		serveCmd      = kingpin.Command("serve", "Serve Prometheus metrics, polling the modem on every scrape.").Default()
		listenAddress = serveCmd.Flag("web.listen-address", "Address to listen on for web interface and telemetry.").Default(":9624").OverrideDefaultFromEnvar("MB8600_EXPORTER_PORT").String()
		metricsPath   = serveCmd.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()

		readCmd         = kingpin.Command("read", "Poll the modem once and ingest logs and channels into the configured sinks.")
		influxURL       = readCmd.Flag("influxdb.url", "InfluxDB 2 URL.").OverrideDefaultFromEnvar("INFLUXDB_URL").String()
		influxToken     = readCmd.Flag("influxdb.token", "InfluxDB API token.").OverrideDefaultFromEnvar("INFLUXDB_TOKEN").String()
		influxOrg       = readCmd.Flag("influxdb.org", "InfluxDB organization.").OverrideDefaultFromEnvar("INFLUXDB_ORG").String()
		influxBucket    = readCmd.Flag("influxdb.bucket", "InfluxDB bucket.").OverrideDefaultFromEnvar("INFLUXDB_BUCKET").String()
		mqttBroker      = readCmd.Flag("mqtt.broker", "MQTT broker URL, e.g. tcp://localhost:1883.").OverrideDefaultFromEnvar("MQTT_BROKER").String()
		mqttUsername    = readCmd.Flag("mqtt.username", "MQTT username.").OverrideDefaultFromEnvar("MQTT_USERNAME").String()
		mqttPassword    = readCmd.Flag("mqtt.password", "MQTT password.").OverrideDefaultFromEnvar("MQTT_PASSWORD").String()
		mqttTopicPrefix = readCmd.Flag("mqtt.topic-prefix", "Prefix of the topics records are published to.").Default("mb8600").String()

		dumpCmd = kingpin.Command("dump", "Print the downstream and upstream channel tables.")
		dumpRaw = dumpCmd.Flag("raw", "Print the raw response of every status action as JSON.").Bool()

		logsCmd   = kingpin.Command("logs", "Print the modem event log.")
		logsStdin = logsCmd.Flag("stdin", "Parse log lists read from stdin, one per line, instead of polling the modem.").Bool()
		logsGrep  = logsCmd.Flag("grep", "Only print entries whose level or message contains this text.").Short('g').String()
		logsJSON  = logsCmd.Flag("json", "Print one JSON object per entry.").Bool()

		replayCmd  = kingpin.Command("replay", "Print the channel tables of a file written by dump --raw.")
		replayFile = replayCmd.Arg("file", "Raw dump to read, stdin when omitted.").File()
	)

	log.AddFlags(kingpin.CommandLine)
	kingpin.Version(version.Print(exporterName))
	kingpin.HelpFlag.Short('h')
	command := kingpin.Parse()

	location, err := time.LoadLocation(*modemTimezone)
	if err != nil {
		log.Fatal(err)
	}

	modem := modemConfig{
		hostname: *modemHostname,
		username: *modemUsername,
		password: *modemPassword,
		location: location,
		insecure: *modemInsecure,
		timeout:  *clientTimeout,
	}

	switch command {
	case readCmd.FullCommand():
		sinks, closeSinks, err := openSinks(
			sink.InfluxConfig{URL: *influxURL, Token: *influxToken, Org: *influxOrg, Bucket: *influxBucket},
			sink.MQTTConfig{Broker: *mqttBroker, Username: *mqttUsername, Password: *mqttPassword, TopicPrefix: *mqttTopicPrefix},
		)
		if err != nil {
			log.Fatal(err)
		}
		err = read(context.Background(), modem, sinks)
		closeSinks()
		if err != nil {
			log.Fatal(err)
		}

	case dumpCmd.FullCommand():
		if err := dump(context.Background(), modem, os.Stdout, *dumpRaw); err != nil {
			log.Fatal(err)
		}

	case logsCmd.FullCommand():
		filter := logFilter{grep: *logsGrep, asJSON: *logsJSON}
		if *logsStdin {
			err = parseLogs(os.Stdin, os.Stdout, location, filter)
		} else {
			err = printLogs(context.Background(), modem, os.Stdout, filter)
		}
		if err != nil {
			log.Fatal(err)
		}

	case replayCmd.FullCommand():
		in := os.Stdin
		if *replayFile != nil {
			in = *replayFile
			defer in.Close()
		}
		if err := replay(in, os.Stdout, location); err != nil {
			log.Fatal(err)
		}

	case serveCmd.FullCommand():
		log.Infoln("Starting", exporterName, version.Info())
		log.Infoln("Build context", version.BuildContext())

		exporter, err := NewExporter(modem)
		if err != nil {
			log.Fatal(err)
		}
		prometheus.MustRegister(exporter)
		prometheus.MustRegister(version.NewCollector(exporterName))

		log.Infoln("Listening on", *listenAddress)
		http.Handle(*metricsPath, promhttp.Handler())
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>
             <head><title>MB8600 Exporter</title></head>
             <body>
             <h1>MB8600 Exporter</h1>
             <p><a href='` + *metricsPath + `'>Metrics</a></p>
             </body>
             </html>`))
		})
		log.Fatal(http.ListenAndServe(*listenAddress, nil))
	}
}
