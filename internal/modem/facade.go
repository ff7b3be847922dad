package modem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loragateway/gatewayd/internal/airtime"
	"github.com/loragateway/gatewayd/pkg/lora"
)

// cadWait/cadTimeout are the channel-activity-detection parameters sent
// with every outbound packet.
const (
	cadWait    = defaultCADWait
	cadTimeout = defaultCADTimeout
)

// Facade wraps a Transport with the logical LoRa parameter surface both
// mesh engines expect (gain, frequency, spreading factor, ...) and
// instruments every RX/TX with airtime and duty-cycle accounting (logged, not enforced),
// mirroring the original modem client's LoraModem base class.
type Facade struct {
	transport Transport
	logger    *zap.Logger

	mu       sync.Mutex
	settings wireSettings
	params   airtime.Params
	haveAll  bool

	dutyRX *airtime.DutyWindow
	dutyTX *airtime.DutyWindow

	rxCb func(lora.PacketRx)
	done chan struct{}
}

// dutyObservationWindow/dutyBucket match the reference implementation's
// hour-long observation window sampled in one-minute buckets.
const (
	dutyObservationWindow = 60 * time.Minute
	dutyBucket            = time.Minute
)

// NewFacade builds a Facade around transport. The duty-cycle windows start
// empty; airtime isn't computed until all of spreading factor, bandwidth,
// coding rate, preamble length, CRC, and low-data-rate-optimize have been
// set, matching the original's "attr required for calc_airtime" guard.
func NewFacade(transport Transport, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	receive := true
	return &Facade{
		transport: transport,
		logger:    logger.With(zap.String("component", "modem_facade")),
		settings:  wireSettings{Type: "settings", Receive: &receive},
		dutyRX:    airtime.NewDutyWindow(dutyObservationWindow, dutyBucket),
		dutyTX:    airtime.NewDutyWindow(dutyObservationWindow, dutyBucket),
		done:      make(chan struct{}),
	}
}

// Start connects the transport and begins dispatching received packets to
// rxCb. It returns once the background read loop has been launched; the
// transport itself may still be reconnecting.
func (f *Facade) Start(ctx context.Context, rxCb func(lora.PacketRx)) error {
	f.mu.Lock()
	f.rxCb = rxCb
	f.mu.Unlock()

	if err := f.transport.Connect(ctx); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	go f.readLoop(ctx)
	return nil
}

// Stop closes the underlying transport.
func (f *Facade) Stop() error {
	return f.transport.Close()
}

func (f *Facade) readLoop(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-f.transport.Lines():
			if !ok {
				return
			}
			f.handleLine(line)
		}
	}
}

// Done returns a channel closed once the background read loop has exited,
// letting a caller that also needs to close a downstream channel do so only
// after this facade's goroutine has stopped touching it.
func (f *Facade) Done() <-chan struct{} {
	return f.done
}

func (f *Facade) handleLine(line []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		f.logger.Debug("unparseable modem line", zap.Error(err))
		return
	}

	switch env.Type {
	case "packetRx":
		var msg wirePacketRx
		if err := json.Unmarshal(line, &msg); err != nil {
			f.logger.Debug("malformed packetRx", zap.Error(err))
			return
		}
		f.handlePacketRx(msg)
	case "telemetry":
		f.logger.Debug("modem telemetry", zap.ByteString("raw", line))
	default:
		f.logger.Debug("unhandled modem message", zap.String("type", env.Type))
	}
}

func (f *Facade) handlePacketRx(msg wirePacketRx) {
	f.mu.Lock()
	cb := f.rxCb
	params := f.params
	haveAll := f.haveAll
	f.mu.Unlock()

	if haveAll {
		a := airtime.Calculate(params, len(msg.Data))
		if err := f.dutyRX.Report(a); err != nil {
			f.logger.Debug("rx duty cycle report failed", zap.Error(err))
		} else {
			f.logDutyCycle("rx", f.dutyRX)
		}
	} else {
		f.logger.Debug("skipping rx airtime accounting",
			zap.Error(&PreconditionError{Msg: "not all LoRa radio parameters are set yet"}))
	}

	if cb == nil {
		return
	}
	cb(lora.PacketRx{
		Packet:    lora.Packet{Payload: msg.Data},
		SNR:       msg.SNR,
		RSSI:      msg.RSSI,
		FreqError: msg.FreqError,
	})
}

func (f *Facade) logDutyCycle(direction string, window *airtime.DutyWindow) {
	d1, err1 := window.Duty(time.Minute)
	d10, err10 := window.Duty(10 * time.Minute)
	d60, err60 := window.Duty(60 * time.Minute)
	if err1 != nil || err10 != nil || err60 != nil {
		return
	}
	f.logger.Debug(direction+" duty cycle",
		zap.Float64("1min_pct", d1*100),
		zap.Float64("10min_pct", d10*100),
		zap.Float64("60min_pct", d60*100),
	)
}

// TX transmits a raw LoRa frame, satisfying both engines' Transmitter
// interface. Airtime/duty-cycle accounting happens before the frame is
// handed to the transport, matching the reference client's tx() wrapper.
func (f *Facade) TX(data []byte) error {
	f.mu.Lock()
	params := f.params
	haveAll := f.haveAll
	f.mu.Unlock()

	if haveAll {
		a := airtime.Calculate(params, len(data))
		if err := f.dutyTX.Report(a); err != nil {
			return fmt.Errorf("modem: tx airtime report: %w", err)
		}
		f.logDutyCycle("tx", f.dutyTX)
	} else {
		f.logger.Debug("skipping tx airtime accounting",
			zap.Error(&PreconditionError{Msg: "not all LoRa radio parameters are set yet"}))
	}

	line, err := json.Marshal(wirePacketTx{
		Type:       "packetTx",
		Data:       data,
		CAD:        true,
		CADWait:    cadWait,
		CADTimeout: cadTimeout,
	})
	if err != nil {
		return fmt.Errorf("modem: encode packetTx: %w", err)
	}
	return f.transport.Send(line)
}

// SetTXPower implements meshcore.PowerController, letting the MeshCore
// engine raise/restore power around a close-range repeat.
func (f *Facade) SetTXPower(dBm int) error {
	f.setSetting(func(s *wireSettings) { s.TXPower = &dBm })
	return f.pushSettings()
}

// SetGain applies gain, rescaled from the engine's 0-10 logical range (0 =
// AGC) to the modem firmware's 1-6 range, matching the original client's
// "scale from 1-10 to 1-6" comment.
func (f *Facade) SetGain(gain int) {
	wireGain := gain
	if gain != 0 {
		wireGain = max(gain*6/10, 1)
	}
	f.setSetting(func(s *wireSettings) { s.Gain = &wireGain })
	_ = f.pushSettings()
}

// SetFrequency sets the modem's center frequency, in Hz.
func (f *Facade) SetFrequency(freqHz int) {
	f.setSetting(func(s *wireSettings) { s.Frequency = &freqHz })
	_ = f.pushSettings()
}

// SetSpreadingFactor sets the LoRa spreading factor and records it for
// airtime accounting.
func (f *Facade) SetSpreadingFactor(sf int) {
	f.mu.Lock()
	f.params.SpreadingFactor = sf
	f.mu.Unlock()
	f.setSetting(func(s *wireSettings) { s.SpreadingFactor = &sf })
	_ = f.pushSettings()
}

// SetBandwidth sets the LoRa signal bandwidth, in Hz, and records it for
// airtime accounting.
func (f *Facade) SetBandwidth(bandwidthHz int) {
	f.mu.Lock()
	f.params.BandwidthHz = bandwidthHz
	f.mu.Unlock()
	f.setSetting(func(s *wireSettings) { s.SignalBandwidth = &bandwidthHz })
	_ = f.pushSettings()
}

// SetCodingRate sets the LoRa coding rate (4/x) and records it for airtime
// accounting.
func (f *Facade) SetCodingRate(codingRate int) {
	f.mu.Lock()
	f.params.CodingRate = codingRate
	f.mu.Unlock()
	f.setSetting(func(s *wireSettings) { s.CodingRate4 = &codingRate })
	_ = f.pushSettings()
}

// SetPreambleLength sets the preamble length, in symbols, and records it
// for airtime accounting.
func (f *Facade) SetPreambleLength(symbols int) {
	f.mu.Lock()
	f.params.PreambleSymbols = symbols
	f.mu.Unlock()
	f.setSetting(func(s *wireSettings) { s.PreambleLength = &symbols })
	_ = f.pushSettings()
}

// SetSyncword sets the LoRa sync word.
func (f *Facade) SetSyncword(syncword int) {
	f.setSetting(func(s *wireSettings) { s.SyncWord = &syncword })
	_ = f.pushSettings()
}

// SetAuxLoraSettings sets CRC, invert-IQ, and low-data-rate-optimize
// together, recording CRC and LDRO for airtime accounting.
func (f *Facade) SetAuxLoraSettings(crc, invertIQ, lowDataRateOptimize bool) {
	f.mu.Lock()
	f.params.CRC = crc
	f.params.LowDataRateOpt = lowDataRateOptimize
	f.haveAll = f.params.SpreadingFactor != 0 && f.params.BandwidthHz != 0 &&
		f.params.CodingRate != 0 && f.params.PreambleSymbols != 0
	f.mu.Unlock()
	f.setSetting(func(s *wireSettings) {
		s.CRC = &crc
		s.InvertIQ = &invertIQ
		s.LowDataRateOptimize = &lowDataRateOptimize
	})
	_ = f.pushSettings()
}

func (f *Facade) setSetting(mutate func(*wireSettings)) {
	f.mu.Lock()
	mutate(&f.settings)
	f.mu.Unlock()
}

// pushSettings re-encodes the full accumulated settings and both stores it
// as the transport's connect payload (so a future reconnect resends
// everything) and sends it immediately if already connected.
func (f *Facade) pushSettings() error {
	f.mu.Lock()
	settings := f.settings
	f.mu.Unlock()

	line, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("modem: encode settings: %w", err)
	}
	f.transport.SetConnectPayload(line)

	if f.transport.IsConnected() {
		if err := f.transport.Send(line); err != nil {
			return fmt.Errorf("modem: send settings: %w", err)
		}
	}
	return nil
}
