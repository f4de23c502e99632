package implementation

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryUserRepository keeps users in process memory
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*auth_models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*auth_models.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *auth_models.User) (*auth_models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return nil, interfaces.ErrDuplicate
		}
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	stored := *user
	r.users[user.UserID] = &stored
	return user, nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, userID string) (*auth_models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*auth_models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

// MemoryDeviceRepository keeps devices in process memory, keyed by device id
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*telemetry_models.Device
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{devices: make(map[string]*telemetry_models.Device)}
}

func (r *MemoryDeviceRepository) Create(ctx context.Context, device *telemetry_models.Device) (*telemetry_models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.devices {
		if existing.DeviceID == device.DeviceID || existing.AuthToken == device.AuthToken {
			return nil, interfaces.ErrDuplicate
		}
	}
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now
	r.devices[device.DeviceID] = cloneDevice(device)
	return device, nil
}

func (r *MemoryDeviceRepository) GetByAuthToken(ctx context.Context, token string) (*telemetry_models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, device := range r.devices {
		if device.AuthToken == token {
			return cloneDevice(device), nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *MemoryDeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*telemetry_models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return cloneDevice(device), nil
}

func (r *MemoryDeviceRepository) ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*telemetry_models.Device, 0)
	for _, device := range r.devices {
		if device.OwnerID == ownerID {
			devices = append(devices, cloneDevice(device))
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].CreatedAt.After(devices[j].CreatedAt) })
	return devices, nil
}

func (r *MemoryDeviceRepository) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return interfaces.ErrNotFound
	}
	seen := at
	device.LastSeen = &seen
	device.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryDeviceRepository) UpdateLayout(ctx context.Context, deviceID string, layout json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return interfaces.ErrNotFound
	}
	device.DashboardLayout = slices.Clone(layout)
	device.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneDevice(d *telemetry_models.Device) *telemetry_models.Device {
	copied := *d
	if d.LastSeen != nil {
		seen := *d.LastSeen
		copied.LastSeen = &seen
	}
	copied.DashboardLayout = slices.Clone(d.DashboardLayout)
	return &copied
}

type pinKey struct {
	deviceID string
	pin      string
}

// MemoryPinRepository serializes provisioning under one lock, so (device, pin) stays unique
type MemoryPinRepository struct {
	mu   sync.Mutex
	pins map[pinKey]*telemetry_models.VirtualPin
}

func NewMemoryPinRepository() *MemoryPinRepository {
	return &MemoryPinRepository{pins: make(map[pinKey]*telemetry_models.VirtualPin)}
}

func (r *MemoryPinRepository) FindOrCreate(ctx context.Context, deviceID, pin string) (*telemetry_models.VirtualPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePin(r.findOrCreateLocked(deviceID, pin)), nil
}

func (r *MemoryPinRepository) UpsertCurrentValue(ctx context.Context, deviceID, pin string, value float64, at time.Time) (*telemetry_models.VirtualPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findOrCreateLocked(deviceID, pin)
	v, ts := value, at
	p.CurrentValue = &v
	p.LastUpdated = &ts
	return clonePin(p), nil
}

func (r *MemoryPinRepository) ListActiveByDevice(ctx context.Context, deviceID string) ([]*telemetry_models.VirtualPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pins := make([]*telemetry_models.VirtualPin, 0)
	for key, p := range r.pins {
		if key.deviceID == deviceID && p.IsActive {
			pins = append(pins, clonePin(p))
		}
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].PinName < pins[j].PinName })
	return pins, nil
}

// Count returns the number of stored pins
func (r *MemoryPinRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pins)
}

func (r *MemoryPinRepository) findOrCreateLocked(deviceID, pin string) *telemetry_models.VirtualPin {
	key := pinKey{deviceID: deviceID, pin: telemetry_models.NormalizePinName(pin)}
	if p, ok := r.pins[key]; ok {
		return p
	}
	p := telemetry_models.NewAutoProvisionedPin(deviceID, pin)
	p.ID = uuid.New().String()
	r.pins[key] = p
	return p
}

func clonePin(p *telemetry_models.VirtualPin) *telemetry_models.VirtualPin {
	copied := *p
	if p.CurrentValue != nil {
		v := *p.CurrentValue
		copied.CurrentValue = &v
	}
	if p.LastUpdated != nil {
		ts := *p.LastUpdated
		copied.LastUpdated = &ts
	}
	return &copied
}

// MemoryReadingRepository is an append-only slice; retention relies on PurgeBefore
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []telemetry_models.SensorReading
}

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{readings: make([]telemetry_models.SensorReading, 0)}
}

func (r *MemoryReadingRepository) Append(ctx context.Context, rd *telemetry_models.SensorReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rd.ID.IsZero() {
		rd.ID = primitive.NewObjectID()
	}
	r.readings = append(r.readings, *rd)
	return nil
}

func (r *MemoryReadingRepository) Query(ctx context.Context, q telemetry_models.ReadingQuery) ([]telemetry_models.SensorReading, error) {
	r.mu.RLock()
	matched := make([]telemetry_models.SensorReading, 0)
	for i := range r.readings {
		if q.Matches(&r.readings[i]) {
			matched = append(matched, r.readings[i])
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r *MemoryReadingRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.readings[:0]
	var removed int64
	for _, rd := range r.readings {
		if rd.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rd)
	}
	clear(r.readings[len(kept):])
	r.readings = kept
	return removed, nil
}

// MemoryAlertRuleRepository keeps rules in process memory
type MemoryAlertRuleRepository struct {
	mu    sync.Mutex
	rules map[string]*telemetry_models.AlertRule
}

func NewMemoryAlertRuleRepository() *MemoryAlertRuleRepository {
	return &MemoryAlertRuleRepository{rules: make(map[string]*telemetry_models.AlertRule)}
}

func (r *MemoryAlertRuleRepository) Create(ctx context.Context, rule *telemetry_models.AlertRule) (*telemetry_models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now().UTC()
	r.rules[rule.ID] = cloneRule(rule)
	return rule, nil
}

func (r *MemoryAlertRuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rules := make([]*telemetry_models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.OwnerID == ownerID {
			rules = append(rules, cloneRule(rule))
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.After(rules[j].CreatedAt) })
	return rules, nil
}

func (r *MemoryAlertRuleRepository) ListActive(ctx context.Context, deviceID, pin string) ([]*telemetry_models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rules := make([]*telemetry_models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.DeviceID == deviceID && rule.Pin == pin && rule.IsActive {
			rules = append(rules, cloneRule(rule))
		}
	}
	return rules, nil
}

func (r *MemoryAlertRuleRepository) RecordTrigger(ctx context.Context, rule *telemetry_models.AlertRule, previous *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rules[rule.ID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if !sameInstant(stored.LastTriggeredAt, previous) {
		return interfaces.ErrStaleTrigger
	}
	updated := cloneRule(rule)
	stored.LastTriggeredAt = updated.LastTriggeredAt
	stored.TriggerCount = updated.TriggerCount
	stored.History = updated.History
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneRule(rule *telemetry_models.AlertRule) *telemetry_models.AlertRule {
	copied := *rule
	copied.Channels = slices.Clone(rule.Channels)
	copied.History = slices.Clone(rule.History)
	if rule.LastTriggeredAt != nil {
		at := *rule.LastTriggeredAt
		copied.LastTriggeredAt = &at
	}
	return &copied
}
