/*
 * waketimer - Main process.
 *
 * Copyright 2025, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	getopt "github.com/pborman/getopt/v2"
	"periph.io/x/periph/conn/physic"

	parser "github.com/rcornwell/waketimer/command/parser"
	reader "github.com/rcornwell/waketimer/command/reader"
	config "github.com/rcornwell/waketimer/config/configparser"
	clock "github.com/rcornwell/waketimer/emu/clock"
	irq "github.com/rcornwell/waketimer/emu/irq"
	master "github.com/rcornwell/waketimer/emu/master"
	power "github.com/rcornwell/waketimer/emu/power"
	rtc "github.com/rcornwell/waketimer/emu/rtc"
	simtmr "github.com/rcornwell/waketimer/emu/simtmr"
	waketmr "github.com/rcornwell/waketimer/emu/waketmr"
	logger "github.com/rcornwell/waketimer/util/logger"
)

// Interrupt line numbers of the simulated unit.
const (
	wakeIRQ  = 1
	alarmIRQ = 2
)

// Options collected from the configuration file.
type settings struct {
	name     string
	rate     uint32
	alarmIRQ bool
	wakeup   bool
}

func defaultSettings() settings {
	return settings{
		name:     "waketimer",
		rate:     waketmr.DefaultRate,
		alarmIRQ: true,
		wakeup:   true,
	}
}

func (s *settings) create(opts []config.Option) error {
	for _, opt := range opts {
		switch opt.Name {
		case "name":
			s.name = opt.EqualOpt
		case "rate":
			rate, err := strconv.ParseUint(opt.EqualOpt, 10, 32)
			if err != nil || rate == 0 {
				return fmt.Errorf("bad rate: %s", opt.EqualOpt)
			}
			s.rate = uint32(rate)
		case "alarmirq":
			s.alarmIRQ = true
		case "noalarmirq":
			s.alarmIRQ = false
		case "wakeup":
			s.wakeup = opt.EqualOpt != "off"
		default:
			return fmt.Errorf("unknown option: %s", opt.Name)
		}
	}
	return nil
}

func main() {
	optConfig := getopt.StringLong("config", 'c', "waketimer.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file io.Writer
	if *optLogFile != "" {
		if f, err := os.Create(*optLogFile); err != nil {
			fmt.Println("Unable to create log file: " + err.Error())
		} else {
			file = f
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	handler := logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, optDebug)
	log := slog.New(handler)
	slog.SetDefault(log)

	log.Info("waketimer started")

	cfg := defaultSettings()
	config.RegisterModel("waketimer", cfg.create)
	config.SetLogFileFunc(func(path string) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		handler.SetLogFile(f)
		return nil
	})
	if _, err := os.Stat(*optConfig); err == nil {
		if err := config.LoadConfigFile(*optConfig); err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}

	masterChannel := make(chan master.Packet)
	pm := power.New(masterChannel)
	ctl := irq.NewController()
	sim := simtmr.New(cfg.rate)
	rtcdev := rtc.NewDevice(cfg.name, masterChannel)
	clk := clock.NewFixed(physic.Frequency(cfg.rate) * physic.Hertz)

	alarm := 0
	if cfg.alarmIRQ {
		alarm = alarmIRQ
	}
	tmr, err := waketmr.New(waketmr.Config{
		Name:     cfg.name,
		Bus:      sim,
		Clock:    clk,
		Intr:     ctl,
		WakeIRQ:  wakeIRQ,
		AlarmIRQ: alarm,
		Power:    pm,
		RTC:      rtcdev,
	})
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	sim.Connect(ctl.Line(wakeIRQ), ctl.Line(alarmIRQ))
	pm.SetMayWakeup(cfg.name, cfg.wakeup)
	if err := rtcdev.SetTime(time.Now()); err != nil {
		log.Error(err.Error())
	}

	// Print asynchronous events and bring the system back up when a
	// wake-capable event arrives while suspended.
	go func() {
		for packet := range masterChannel {
			switch packet.Msg {
			case master.AlarmEvent:
				fmt.Println("\n[alarm fired]")
			case master.WakeEvent:
				fmt.Println("\n[wake event]")
			case master.PowerDown:
				continue
			}
			if pm.Asleep() {
				pm.Resume()
				fmt.Println("[system resumed]")
			}
		}
	}()

	sim.FreeRun(10 * time.Millisecond)
	sim.Start()

	reader.ConsoleReader(&parser.Target{
		Name:  cfg.name,
		RTC:   rtcdev,
		Power: pm,
		Sim:   sim,
	})

	sim.Shutdown()
	tmr.Close(ctl)
	log.Info("waketimer stopped")
}
