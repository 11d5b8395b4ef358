package cache

import "fmt"

// KeyStands holds the gzip-compressed JSON of every stand in a layout.
func KeyStands(layout string) string {
	return fmt.Sprintf("stands:%s", layout)
}

// KeyOccupied holds a plain JSON object of occupied stand name to callsign.
func KeyOccupied(layout string) string {
	return fmt.Sprintf("occupied:%s", layout)
}
