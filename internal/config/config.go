package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Google   Google   `koanf:"google"`
	Radicale Radicale `koanf:"radicale"`
	Sync     Sync     `koanf:"sync"`
	Database Database `koanf:"db"`
}

type Google struct {
	CredentialsFile string `koanf:"credentialsfile"`
	TokenFile       string `koanf:"tokenfile"`
	CalendarId      string `koanf:"calendarid"`
	// WebhookUrl is the public address Google delivers push notifications to.
	WebhookUrl string `koanf:"webhookurl"`
}

type Radicale struct {
	Url         string `koanf:"url"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	Calendar    string `koanf:"calendar"`
	AddressBook string `koanf:"addressbook"`
}

type Sync struct {
	TokensFile string `koanf:"tokensfile"`
	Workers    int    `koanf:"workers"`
	MaxRetries int    `koanf:"maxretries"`
	// RetryBackoff is the fixed delay before a failed task is re-queued.
	RetryBackoff time.Duration `koanf:"retrybackoff"`
	// Interval drives the periodic incremental sync job.
	Interval time.Duration `koanf:"interval"`
	// ChannelRefreshInterval drives re-registration of the Google watch channel,
	// which expires after at most 7 days.
	ChannelRefreshInterval time.Duration `koanf:"channelrefreshinterval"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Application{
		Host: "http://localhost:8000",
		Port: 8000,
		Google: Google{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			CalendarId:      "primary",
		},
		Radicale: Radicale{
			Url:         "http://localhost:5232",
			Username:    "admin",
			Password:    "admin",
			Calendar:    "default",
			AddressBook: "contacts",
		},
		Sync: Sync{
			TokensFile:             "sync_tokens.json",
			Workers:                4,
			MaxRetries:             2,
			RetryBackoff:           60 * time.Second,
			Interval:               5 * time.Minute,
			ChannelRefreshInterval: 144 * time.Hour,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "calmirror",
			Pass:   "",
			Name:   "calmirror",
			Schema: "calmirror",
		},
	}, "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "CALMIRROR_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "CALMIRROR_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
