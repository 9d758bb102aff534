package main

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kindred-inc/kindred-api/api"
	"github.com/kindred-inc/kindred-api/external/alerts"
	"github.com/kindred-inc/kindred-api/insights"
	"github.com/kindred-inc/kindred-api/mailer"
	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/store"
)

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/kindred-api")

	viper.SetEnvPrefix("kindred")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("mongo.conn", "mongodb://127.0.0.1:27017")
	viper.SetDefault("mongo.database", "kindred")
	viper.SetDefault("export.limit", 5)
	viper.SetDefault("export.window_minutes", 60)

	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).Warn("no config file loaded, using environment and defaults")
	}
}

func initLog() {
	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func main() {
	initConfig()
	initLog()

	for _, key := range []string{"secret.jwt", "secret.signing"} {
		if viper.GetString(key) == "" {
			log.WithField("key", key).Fatal("missing required secret")
		}
	}

	mongoClient, err := store.NewMongoClient(viper.GetString("mongo.conn"))
	if err != nil {
		log.WithError(err).Fatal("fail to connect to mongodb")
	}

	if err := schema.NewMongoDBIndexer(viper.GetString("mongo.conn"), viper.GetString("mongo.database")).IndexAll(); err != nil {
		log.WithError(err).Fatal("fail to create mongodb indexes")
	}

	kindredStore := store.NewMongoStore(mongoClient, viper.GetString("mongo.database"))
	defer kindredStore.Close()

	var notifier mailer.Notifier
	if viper.GetString("smtp.host") != "" {
		notifier = mailer.NewSMTPNotifier(mailer.Config{
			Host:        viper.GetString("smtp.host"),
			Port:        viper.GetInt("smtp.port"),
			Username:    viper.GetString("smtp.username"),
			Password:    viper.GetString("smtp.password"),
			From:        viper.GetString("smtp.from"),
			LinkBaseURL: viper.GetString("link_base_url"),
		})
	} else {
		log.Warn("smtp is not configured, consent emails will not be sent")
	}

	var alertPublisher alerts.Publisher
	if viper.GetString("amqp.conn") != "" {
		alertPublisher, err = alerts.NewAMQPPublisher(viper.GetString("amqp.conn"), viper.GetString("amqp.queue"))
		if err != nil {
			log.WithError(err).Error("fail to connect to rabbitmq, operational alerts disabled")
			alertPublisher = nil
		} else {
			defer alertPublisher.Close()
		}
	}

	var redisClient *redis.Client
	if viper.GetString("redis.addr") != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
		})
	} else {
		log.Warn("redis is not configured, export rate limiting disabled")
	}

	server := api.NewServer(api.ServerConfig{
		Store:    kindredStore,
		Notifier: notifier,
		Alerts:   alertPublisher,
		Insights: insights.NewStubGenerator(),
		ExportLimiter: api.NewExportLimiter(
			redisClient,
			viper.GetInt64("export.limit"),
			time.Duration(viper.GetInt("export.window_minutes"))*time.Minute,
		),
		JWTSecret:     []byte(viper.GetString("secret.jwt")),
		SigningSecret: []byte(viper.GetString("secret.signing")),
		TraceMode:     viper.GetBool("trace_mode"),
	})

	log.WithField("addr", viper.GetString("listen_addr")).Info("starting kindred api server")
	if err := server.Run(viper.GetString("listen_addr")); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
