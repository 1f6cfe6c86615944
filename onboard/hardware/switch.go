package hardware

import "sync"

// ChipSwitch reads a panel switch on a header pin. The line is pulled up and
// requested on the first read.
type ChipSwitch struct {
	Chip      string
	Pin       int
	ActiveLow bool

	request lineRequester
	lock    sync.Mutex
	line    line
}

func NewChipSwitch(chip string, pin int, activeLow bool) *ChipSwitch {
	if chip == "" {
		chip = DefaultChip
	}
	return &ChipSwitch{Chip: chip, Pin: pin, ActiveLow: activeLow, request: requestLine}
}

// Read returns true when the switch is closed.
func (s *ChipSwitch) Read() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.line == nil {
		offset, err := BoardLine(s.Pin)
		if err != nil {
			return false, err
		}
		l, err := s.request(s.Chip, offset, false, s.ActiveLow)
		if err != nil {
			return false, err
		}
		s.line = l
	}

	v, err := s.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (s *ChipSwitch) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.line == nil {
		return nil
	}
	err := s.line.Close()
	s.line = nil
	return err
}

// StaticSwitch is a switch fixed in one position.
type StaticSwitch bool

func (s StaticSwitch) Read() (bool, error) {
	return bool(s), nil
}
