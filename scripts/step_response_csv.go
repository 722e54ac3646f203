package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/Agrid-Dev/fanctl/internal/control"
	"github.com/Agrid-Dev/fanctl/internal/hw/sim"
	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

// ScheduledCommand is a command line fed to the loop before the given cycle.
type ScheduledCommand struct {
	IterationNumber int
	Line            string
}

type nopSink struct{}

func (nopSink) Record(telemetry.Record) {}
func (nopSink) Status(string)           {}
func (nopSink) Error(string)            {}

func SimulateStepResponse(iterations int, filename string, commands []ScheduledCommand) error {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	plant, err := sim.NewPlant(sim.PlantParams{
		InitialTemperature: 30,
		Humidity:           45,
		Thermal:            sim.Thermal{HeatLoad: 0.05, CoolingRate: 0.2, Ambient: 20, Conductance: 0.001},
		Distance:           100,
	}, clock, nil)
	if err != nil {
		return fmt.Errorf("failed to create plant: %v", err)
	}

	pid, err := control.NewPIDController(control.PIDParams{
		OutMin:    control.FanMin,
		OutMax:    control.FanMax,
		Direction: control.DirectionReverse,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %v", err)
	}

	state := control.NewState(control.Settings{
		Setpoint:          25,
		Tolerance:         2,
		FanMinSpeed:       50,
		DistanceThreshold: 15,
		Gains:             control.Gains{Kp: 25, Ki: 0.2},
	})
	loop, err := control.NewLoop(state, plant.Hardware(), pid, nopSink{}, control.LoopConfig{
		Period:  time.Second,
		Encoder: control.EncoderDomain{Min: 0, Max: 100},
		Alarm: control.AlarmConfig{
			On:         100 * time.Millisecond,
			Off:        100 * time.Millisecond,
			MaxPending: 6,
			Policy:     control.FaultPolicyFailsafe,
		},
	}, control.WithClock(clock))
	if err != nil {
		return fmt.Errorf("failed to create loop: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Iteration", "Temperature", "Setpoint", "BandLow", "BandHigh", "FanOutput", "Mode"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for i := range iterations {
		for _, cmd := range commands {
			if cmd.IterationNumber == i+1 {
				loop.HandleCommand(cmd.Line)
			}
		}

		loop.Cycle()
		s := state.Get()

		if err := writer.Write([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", s.Temperature),
			fmt.Sprintf("%.2f", s.Setpoint),
			fmt.Sprintf("%.2f", s.Setpoint-s.Tolerance),
			fmt.Sprintf("%.2f", s.Setpoint+s.Tolerance),
			fmt.Sprintf("%.2f", s.FanOutput),
			s.Mode.String(),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}

		now = now.Add(time.Second)
	}
	return nil
}

func main() {
	commands := []ScheduledCommand{
		{IterationNumber: 600, Line: "SETPOINT=22"},
		{IterationNumber: 1200, Line: "PID=40,0.5,0"},
	}
	if err := SimulateStepResponse(2000, "step_response.csv", commands); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
