// Package mqtt ingests team telemetry published by field units. Vehicles on
// patrol push their position over MQTT instead of holding a websocket open;
// the ingestor folds those updates into the same registry and realtime
// mirror as socket traffic.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sosgrid/sosd/core/gateway"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/registry"
	"github.com/sosgrid/sosd/infra/logger"
)

const (
	locationTopicFilter = "teams/+/location"
	statusTopicFilter   = "teams/+/status"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled    bool            `json:"enabled"`
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	TLSConfig  *tls.Config     `json:"-"`
}

// SetDefaults fills the client identity when unset.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "sosd-" + uuid.NewString()[:8]
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Ingestor subscribes to the team telemetry topics and mirrors each update
// into the registry and onto the realtime gateway.
type Ingestor struct {
	cli      pahoClient
	registry registry.Store
	gateway  gateway.Publisher
	qos      map[string]byte
	logger   logger.Logger
}

// NewIngestor connects to the broker and subscribes to the telemetry topics.
func NewIngestor(cfg Config, reg registry.Store, pub gateway.Publisher) (*Ingestor, error) {
	if reg == nil || pub == nil {
		return nil, fmt.Errorf("mqtt: nil parameter provided to NewIngestor")
	}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_ingest")
	in := &Ingestor{registry: reg, gateway: pub, qos: cfg.QoS, logger: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(locationTopicFilter, in.qosFor("location"), in.onLocation); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
		if token := c.Subscribe(statusTopicFilter, in.qosFor("status"), in.onStatus); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	in.cli = c
	return in, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (in *Ingestor) qosFor(kind string) byte {
	if q, ok := in.qos[kind]; ok {
		return q
	}
	return 0
}

type locationMessage struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	TeamType  model.TeamType   `json:"team_type"`
	Status    model.TeamStatus `json:"status"`
}

type statusMessage struct {
	Status model.TeamStatus `json:"status"`
}

func (in *Ingestor) onLocation(_ paho.Client, msg paho.Message) {
	teamID := teamFromTopic(msg.Topic())
	if teamID == "" {
		in.logger.Warnf("location on unexpected topic %s", msg.Topic())
		return
	}
	var m locationMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		in.logger.Errorf("failed to decode location for %s: %v", teamID, err)
		return
	}
	loc := model.Location{Latitude: m.Latitude, Longitude: m.Longitude}
	if err := loc.Validate(); err != nil {
		in.logger.Warnf("dropping location for %s: %v", teamID, err)
		return
	}
	p := in.registry.UpsertLocation(teamID, loc, m.TeamType, m.Status)
	in.gateway.Broadcast(gateway.EventTeamLocation, gateway.LocationPayload{
		TeamID:    p.TeamID,
		Location:  p.Location,
		TeamType:  p.Type,
		Status:    p.Status,
		Timestamp: p.LastUpdate,
	})
}

func (in *Ingestor) onStatus(_ paho.Client, msg paho.Message) {
	teamID := teamFromTopic(msg.Topic())
	if teamID == "" {
		in.logger.Warnf("status on unexpected topic %s", msg.Topic())
		return
	}
	var m statusMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		in.logger.Errorf("failed to decode status for %s: %v", teamID, err)
		return
	}
	if !m.Status.Valid() {
		in.logger.Warnf("dropping unknown status %q for %s", m.Status, teamID)
		return
	}
	p := in.registry.SetStatus(teamID, m.Status)
	in.gateway.Broadcast(gateway.EventTeamStatus, gateway.StatusPayload{TeamID: p.TeamID, Status: p.Status})
}

// teamFromTopic extracts the team segment of teams/<id>/location|status.
func teamFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "teams" {
		return ""
	}
	return parts[1]
}

// Disconnect gracefully closes the MQTT connection.
func (in *Ingestor) Disconnect() {
	if in.cli != nil && in.cli.IsConnected() {
		in.cli.Disconnect(250)
	}
}
