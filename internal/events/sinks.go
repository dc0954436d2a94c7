package events

import (
	"github.com/sirupsen/logrus"

	"caseline/internal/config"
)

// SinksFromConfig builds the relay sinks configured in caseline.yml. The
// returned close func releases broker connections.
func SinksFromConfig(cfg *config.Config, log logrus.FieldLogger) ([]Sink, func(), error) {
	var sinks []Sink
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	for _, hook := range cfg.Webhooks {
		if !hook.IsEnabled() {
			log.WithField("url", hook.URL).Info("webhook disabled")
			continue
		}
		sinks = append(sinks, NewWebhookSink(hook))
	}
	if cfg.Broker.URL != "" {
		s, err := NewAMQPSink(cfg.Broker)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { s.Close() })
		sinks = append(sinks, s)
	}
	return sinks, closeAll, nil
}
