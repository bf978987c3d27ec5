package controllers

import (
	"fmt"

	"github.com/quadkit/descent/internal/flight"
)

// New builds an uninitialized controller by name.
func New(name string) (flight.Controller, error) {
	switch name {
	case "pid":
		return NewPID(), nil
	case "ude":
		return NewUDE(), nil
	case "adrc":
		return NewADRC(), nil
	}
	return nil, fmt.Errorf("unknown controller: %s", name)
}

func Names() []string {
	return []string{"adrc", "pid", "ude"}
}
