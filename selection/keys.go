package selection

// Key is a navigation key fanned out to every open view.
type Key string

const (
	KeyLeft  Key = "left"
	KeyRight Key = "right"
	KeyEsc   Key = "esc"
)

// ParseKey validates a key name.
func ParseKey(s string) (Key, bool) {
	switch k := Key(s); k {
	case KeyLeft, KeyRight, KeyEsc:
		return k, true
	}
	return "", false
}

// Modifiers are the modifier keys held during a click.
type Modifiers struct {
	Shift bool `json:"shift"`
	Ctrl  bool `json:"ctrl"`
}

// HandleKey applies a key from the shared key stream. Left and right
// release shift before stepping. Unknown keys are ignored.
func (c *Controller) HandleKey(k Key) bool {
	switch k {
	case KeyLeft, KeyRight:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.shift = false
		if k == KeyLeft {
			c.step(-1)
		} else {
			c.step(1)
		}
		c.publish()
	case KeyEsc:
		c.Esc()
	default:
		return false
	}
	return true
}

// ShiftStep takes one shift-extended step (delta -1 or 1) without latching
// shift: the mirrored modifier is restored afterwards.
func (c *Controller) ShiftStep(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.shift
	c.shift = true
	c.step(delta)
	c.shift = held
	c.publish()
}
