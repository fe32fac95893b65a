package telemetry

import "go.uber.org/zap"

// EventType names a category of audit event: devices, capabilities,
// sessions/choreographies, compaction, and the query engine.
type EventType string

const (
	EventDeviceRegistered  EventType = "device_registered"
	EventDeviceTombstoned  EventType = "device_tombstoned"
	EventCapabilityGranted EventType = "capability_granted"
	EventCapabilityRevoked EventType = "capability_revoked"

	EventSessionInitiated EventType = "session_initiated"
	EventSessionCompleted EventType = "session_completed"
	EventSessionAborted   EventType = "session_aborted"

	EventChoreographyRoundAdvanced EventType = "choreography_round_advanced"
	EventRecoveryVetoed            EventType = "recovery_vetoed"

	EventCompactionProposed  EventType = "compaction_proposed"
	EventCompactionCommitted EventType = "compaction_committed"

	EventQueryExecuted      EventType = "query_executed"
	EventConsensusTimeout   EventType = "consensus_timeout"
	EventInvalidationFailed EventType = "invalidation_failed"
)

// AuditLogger wraps a *zap.Logger with optional account/session scoping.
// Every method below logs one structured event: info for lifecycle
// events, debug for per-round choreography progress and successful
// queries, warn for failed or aborted sessions and other failures that
// don't propagate. No method logs at error level.
type AuditLogger struct {
	log       *zap.Logger
	accountID string
	sessionID string
}

// NewAuditLogger wraps base with no scoping.
func NewAuditLogger(base *zap.Logger) *AuditLogger {
	return &AuditLogger{log: base}
}

// WithAccount returns a logger scoped to accountID.
func (a *AuditLogger) WithAccount(accountID string) *AuditLogger {
	return &AuditLogger{log: a.log, accountID: accountID, sessionID: a.sessionID}
}

// WithSession returns a logger scoped to sessionID.
func (a *AuditLogger) WithSession(sessionID string) *AuditLogger {
	return &AuditLogger{log: a.log, accountID: a.accountID, sessionID: sessionID}
}

func (a *AuditLogger) scopeFields() []zap.Field {
	var fields []zap.Field
	if a.accountID != "" {
		fields = append(fields, zap.String("account_id", a.accountID))
	}
	if a.sessionID != "" {
		fields = append(fields, zap.String("session_id", a.sessionID))
	}
	return fields
}

func (a *AuditLogger) DeviceRegistered(deviceID string) {
	a.log.Info(string(EventDeviceRegistered), append(a.scopeFields(), zap.String("device_id", deviceID))...)
}

func (a *AuditLogger) DeviceTombstoned(deviceID string) {
	a.log.Info(string(EventDeviceTombstoned), append(a.scopeFields(), zap.String("device_id", deviceID))...)
}

func (a *AuditLogger) CapabilityGranted(rootKeyHex string, attenuationBlocks int) {
	a.log.Info(string(EventCapabilityGranted), append(a.scopeFields(),
		zap.String("root_key", rootKeyHex),
		zap.Int("attenuation_blocks", attenuationBlocks))...)
}

func (a *AuditLogger) CapabilityRevoked(rootKeyHex string) {
	a.log.Info(string(EventCapabilityRevoked), append(a.scopeFields(), zap.String("root_key", rootKeyHex))...)
}

func (a *AuditLogger) SessionInitiated(sessionID, protocolType string) {
	a.log.Info(string(EventSessionInitiated), append(a.scopeFields(),
		zap.String("session_id", sessionID),
		zap.String("protocol_type", protocolType))...)
}

func (a *AuditLogger) SessionCompleted(sessionID string, success bool, durationMs int64) {
	level := a.log.Info
	if !success {
		level = a.log.Warn
	}
	level(string(EventSessionCompleted), append(a.scopeFields(),
		zap.String("session_id", sessionID),
		zap.Bool("success", success),
		zap.Int64("duration_ms", durationMs))...)
}

func (a *AuditLogger) SessionAborted(sessionID, reason string) {
	a.log.Warn(string(EventSessionAborted), append(a.scopeFields(),
		zap.String("session_id", sessionID),
		zap.String("reason", reason))...)
}

func (a *AuditLogger) ChoreographyRoundAdvanced(sessionID, round string) {
	a.log.Debug(string(EventChoreographyRoundAdvanced), append(a.scopeFields(),
		zap.String("session_id", sessionID),
		zap.String("round", round))...)
}

func (a *AuditLogger) RecoveryVetoed(sessionID, guardianID, reason string) {
	a.log.Info(string(EventRecoveryVetoed), append(a.scopeFields(),
		zap.String("session_id", sessionID),
		zap.String("guardian_id", guardianID),
		zap.String("reason", reason))...)
}

func (a *AuditLogger) CompactionProposed(beforeEpoch uint64, affectedEvents int) {
	a.log.Info(string(EventCompactionProposed),
		zap.Uint64("before_epoch", beforeEpoch),
		zap.Int("affected_events", affectedEvents))
}

func (a *AuditLogger) CompactionCommitted(beforeEpoch uint64, preservedSessions int) {
	a.log.Info(string(EventCompactionCommitted),
		zap.Uint64("before_epoch", beforeEpoch),
		zap.Int("preserved_sessions", preservedSessions))
}

func (a *AuditLogger) QueryExecuted(resultQuery string, bindingCount int, durationMs int64, err error) {
	fields := append(a.scopeFields(),
		zap.String("result_query", resultQuery),
		zap.Int("binding_count", bindingCount),
		zap.Int64("duration_ms", durationMs))
	if err != nil {
		a.log.Warn(string(EventQueryExecuted), append(fields, zap.Error(err))...)
		return
	}
	a.log.Debug(string(EventQueryExecuted), fields...)
}

func (a *AuditLogger) ConsensusTimeout(id string) {
	a.log.Warn(string(EventConsensusTimeout), append(a.scopeFields(), zap.String("consensus_id", id))...)
}

// InvalidationFailed implements reactive.Logger: reactive accepts any
// type with this method, so AuditLogger satisfies it without
// internal/reactive importing this package.
func (a *AuditLogger) InvalidationFailed(signalID string, predicate string, err error) {
	a.log.Warn(string(EventInvalidationFailed), append(a.scopeFields(),
		zap.String("signal_id", signalID),
		zap.String("predicate", predicate),
		zap.Error(err))...)
}
