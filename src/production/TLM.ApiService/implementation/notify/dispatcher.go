package notify

import (
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

// Broadcaster delivers an event to every live connection in a room
type Broadcaster interface {
	Emit(room, event string, data interface{})
}

// AlertMailer accepts trigger events for asynchronous email delivery
type AlertMailer interface {
	Enqueue(event telemetry_models.AlertTriggeredEvent) bool
}

// Dispatcher is the notification fanout used by ingestion and alert evaluation
type Dispatcher struct {
	rooms  Broadcaster
	mailer AlertMailer
	logger *logger.Logger
}

// NewDispatcher creates a fanout. mailer may be nil when email is disabled.
func NewDispatcher(rooms Broadcaster, mailer AlertMailer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		rooms:  rooms,
		mailer: mailer,
		logger: log.WithComponent("fanout"),
	}
}

// PublishReading sends sensor_data to the device room and the owner's room
func (d *Dispatcher) PublishReading(ownerID string, event telemetry_models.SensorDataEvent) {
	d.emitBoth(event.DeviceID, ownerID, telemetry_models.EventSensorData, event)
}

// PublishAlert sends alert_triggered to the device and rule owner rooms, then queues email
func (d *Dispatcher) PublishAlert(event telemetry_models.AlertTriggeredEvent) {
	d.emitBoth(event.DeviceID, event.OwnerID, telemetry_models.EventAlertTriggered, event)

	if d.mailer == nil {
		return
	}
	for _, channel := range event.Channels {
		if channel == telemetry_models.ChannelEmail {
			if !d.mailer.Enqueue(event) {
				d.logger.Logger.Warn().Str("alert_id", event.AlertID).Msg("Email queue full, alert email dropped")
			}
			return
		}
	}
}

// PublishLayout notifies device subscribers that the dashboard layout changed
func (d *Dispatcher) PublishLayout(event telemetry_models.LayoutUpdatedEvent) {
	d.emit(telemetry_models.DeviceRoom(event.DeviceID), telemetry_models.EventLayoutUpdated, event)
}

func (d *Dispatcher) emitBoth(deviceID, ownerID, name string, data interface{}) {
	d.emit(telemetry_models.DeviceRoom(deviceID), name, data)
	if ownerID != "" {
		d.emit(telemetry_models.UserRoom(ownerID), name, data)
	}
}

// emit never lets a broadcaster panic escape into the pipeline
func (d *Dispatcher) emit(room, name string, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Logger.Error().Interface("panic", r).Str("room", room).Str("event", name).Msg("Fanout failed")
		}
	}()
	d.rooms.Emit(room, name, data)
}
