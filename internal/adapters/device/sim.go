package device

import "sync"

// SimDevice is a scriptable DeviceReader used by the simulator and tests.
type SimDevice struct {
	mu         sync.Mutex
	valid      bool
	gripButton *bool
	grip       *float64
	position   Vec3
	velocity   Vec3
}

// NewSimDevice returns a valid device with no grip features.
func NewSimDevice() *SimDevice {
	return &SimDevice{valid: true}
}

// SetValid marks the device connected or disconnected.
func (d *SimDevice) SetValid(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.valid = v
}

// SetGripButton sets the boolean grip usage.
func (d *SimDevice) SetGripButton(held bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gripButton = &held
}

// SetGripAxis sets the analog grip usage and removes the button usage.
func (d *SimDevice) SetGripAxis(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gripButton = nil
	d.grip = &v
}

// SetMotion sets position and velocity.
func (d *SimDevice) SetMotion(position, velocity Vec3) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = position
	d.velocity = velocity
}

// IsValid implements DeviceReader.
func (d *SimDevice) IsValid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valid
}

// TryReadBool implements DeviceReader.
func (d *SimDevice) TryReadBool(f Feature) (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f == FeatureGripButton && d.gripButton != nil {
		return *d.gripButton, true
	}
	return false, false
}

// TryReadFloat implements DeviceReader.
func (d *SimDevice) TryReadFloat(f Feature) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f == FeatureGrip && d.grip != nil {
		return *d.grip, true
	}
	return 0, false
}

// TryReadVec3 implements DeviceReader.
func (d *SimDevice) TryReadVec3(f Feature) (Vec3, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch f {
	case FeaturePosition:
		return d.position, true
	case FeatureVelocity:
		return d.velocity, true
	default:
		return Vec3{}, false
	}
}

// SimProvider binds nodes to simulated devices.
type SimProvider struct {
	mu      sync.Mutex
	devices map[Node]*SimDevice
}

// NewSimProvider returns a provider with no devices attached.
func NewSimProvider() *SimProvider {
	return &SimProvider{devices: make(map[Node]*SimDevice)}
}

// Attach binds d to node n, replacing any previous device.
func (p *SimProvider) Attach(n Node, d *SimDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices[n] = d
}

// DeviceAt implements Provider.
func (p *SimProvider) DeviceAt(n Node) DeviceReader {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.devices[n]
	if !ok {
		return nil
	}
	return d
}
