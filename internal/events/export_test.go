package events

// DropChannel closes the sink's channel while leaving the connection up.
func (s *AMQPSink) DropChannel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.Close()
}

// DropConnection closes the sink's connection underneath it.
func (s *AMQPSink) DropConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
