package hardware

import "fmt"

// boardToBCM maps physical header pins of the 40 pin Raspberry Pi connector to
// the BCM line offsets on gpiochip0. Power and ground pins are absent.
var boardToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23,
	18: 24, 19: 10, 21: 9, 22: 25, 23: 11,
	24: 8, 26: 7, 27: 0, 28: 1, 29: 5,
	31: 6, 32: 12, 33: 13, 35: 19, 36: 16,
	37: 26, 38: 20, 40: 21,
}

// BoardLine returns the chip line offset wired to header pin. Pins in the
// configuration are header (BOARD) numbers.
func BoardLine(pin int) (int, error) {
	line, ok := boardToBCM[pin]
	if !ok {
		return 0, fmt.Errorf("header pin %d is not a GPIO", pin)
	}
	return line, nil
}
