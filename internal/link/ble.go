package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

var (
	ServiceFitnessMachine = bluetooth.New16BitUUID(0x1826)
	CharTreadmillData     = bluetooth.New16BitUUID(0x2ACD)
)

var (
	ErrScanTimeout     = errors.New("link: treadmill not found")
	ErrNoTreadmillData = errors.New("link: treadmill data characteristic missing")
)

const defaultScanTimeout = 15 * time.Second

// Treadmill is a BLE FTMS treadmill. With an empty MAC the first advertiser
// of the fitness machine service is used.
type Treadmill struct {
	*outbox

	adapter     *bluetooth.Adapter
	mac         string
	scanTimeout time.Duration
	log         *slog.Logger

	enableOnce sync.Once
	enableErr  error

	mu        sync.Mutex
	device    *bluetooth.Device
	connected atomic.Bool
}

func NewTreadmill(adapter *bluetooth.Adapter, mac string, logger *slog.Logger) *Treadmill {
	if logger == nil {
		logger = slog.Default()
	}
	return &Treadmill{
		outbox:      newOutbox(),
		adapter:     adapter,
		mac:         mac,
		scanTimeout: defaultScanTimeout,
		log:         logger.With("component", "link"),
	}
}

func (t *Treadmill) Frames() <-chan []byte { return t.frames }

func (t *Treadmill) Connected() bool { return t.connected.Load() }

func (t *Treadmill) enable() error {
	t.enableOnce.Do(func() {
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if !connected && t.isCurrent(device) {
				t.connected.Store(false)
				t.log.Warn("treadmill disconnected", "addr", device.Address.String())
			}
		})
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("bluetooth error: %w", err)
		}
	})
	return t.enableErr
}

func (t *Treadmill) isCurrent(device bluetooth.Device) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.device != nil && t.device.Address.String() == device.Address.String()
}

// Reconnect scans for the treadmill, connects and subscribes to treadmill
// data notifications.
func (t *Treadmill) Reconnect(ctx context.Context) error {
	if t.Connected() {
		return nil
	}
	if err := t.enable(); err != nil {
		return err
	}

	result, err := t.scan(ctx)
	if err != nil {
		return err
	}
	t.log.Info("connecting to treadmill", "name", result.LocalName(), "addr", result.Address.String())

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	ptr := new(bluetooth.Device)
	*ptr = device

	if err := t.subscribe(ptr); err != nil {
		_ = ptr.Disconnect()
		return err
	}

	t.mu.Lock()
	t.device = ptr
	t.mu.Unlock()
	t.connected.Store(true)
	t.log.Info("treadmill connected")
	return nil
}

func (t *Treadmill) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	ch := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !t.matches(result) {
				return
			}
			_ = adapter.StopScan()
			select {
			case ch <- result:
			default:
			}
		})
		if err != nil {
			t.log.Warn("scan error", "err", err)
		}
	}()

	timer := time.NewTimer(t.scanTimeout)
	defer timer.Stop()
	select {
	case result := <-ch:
		return result, nil
	case <-timer.C:
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, ErrScanTimeout
	case <-ctx.Done():
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func (t *Treadmill) matches(result bluetooth.ScanResult) bool {
	if t.mac != "" {
		return strings.EqualFold(result.Address.String(), t.mac)
	}
	return result.HasServiceUUID(ServiceFitnessMachine)
}

func (t *Treadmill) subscribe(device *bluetooth.Device) error {
	services, err := device.DiscoverServices([]bluetooth.UUID{ServiceFitnessMachine})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	for _, service := range services {
		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{CharTreadmillData})
		if err != nil {
			continue
		}
		for _, char := range chars {
			if char.UUID() != CharTreadmillData {
				continue
			}
			if err := char.EnableNotifications(t.deliver); err != nil {
				return fmt.Errorf("enable notifications: %w", err)
			}
			return nil
		}
	}
	return ErrNoTreadmillData
}

func (t *Treadmill) Disconnect() {
	t.mu.Lock()
	device := t.device
	t.device = nil
	t.mu.Unlock()

	t.connected.Store(false)
	if device != nil {
		_ = device.Disconnect()
		t.log.Info("treadmill disconnected")
	}
}
