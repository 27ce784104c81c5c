// Package config loads the INI-style task graph file into a
// taskgraph.Graph, filling per-task defaults from the [mode] section and
// honoring ${section:key} interpolation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nestrun/internal/taskgraph"
)

// Load reads path and returns the fully-resolved task graph, or a
// *ConfigError / *DependencyError describing the first problem found.
func Load(path string) (*taskgraph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	defer f.Close()

	ini, err := parseINI(f)
	if err != nil {
		return nil, err
	}

	if _, ok := ini.sections["mode"]; !ok {
		return nil, &ConfigError{Section: "mode", Reason: "missing required [mode] section"}
	}
	threads, err := requireInt(ini, "mode", "threads")
	if err != nil {
		return nil, err
	}

	names := ini.taskSections()
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}

	graph := &taskgraph.Graph{
		Order:   names,
		Tasks:   make(map[string]*taskgraph.Task, len(names)),
		Threads: threads,
	}

	for _, name := range names {
		task, err := buildTask(ini, name, nameSet)
		if err != nil {
			return nil, err
		}
		graph.Tasks[name] = task
	}

	return graph, nil
}

func buildTask(ini *iniFile, name string, nameSet map[string]bool) (*taskgraph.Task, error) {
	if !ini.has(name, "cmd") || strings.TrimSpace(ini.get(name, "cmd")) == "" {
		return nil, &ConfigError{Section: name, Key: "cmd", Reason: "required field is absent"}
	}

	depend, err := parseDepend(ini, name, nameSet)
	if err != nil {
		return nil, err
	}

	cpu, err := optionalFloat(ini, name, "cpu", 0)
	if err != nil {
		return nil, err
	}
	mem, err := optionalFloat(ini, name, "mem", 0)
	if err != nil {
		return nil, err
	}

	retry, err := inheritedInt(ini, name, "mode", "retry")
	if err != nil {
		return nil, err
	}
	monitorResource, err := inheritedBool(ini, name, "mode", "monitor_resource")
	if err != nil {
		return nil, err
	}
	monitorStepSec, err := inheritedInt(ini, name, "mode", "monitor_time_step")
	if err != nil {
		return nil, err
	}
	checkResource, err := inheritedBool(ini, name, "mode", "check_resource_before_run")
	if err != nil {
		return nil, err
	}

	timeout := taskgraph.DefaultTimeout
	if ini.has(name, "timeout") {
		secs, err := parseInt(ini.get(name, "timeout"), name, "timeout")
		if err != nil {
			return nil, err
		}
		timeout = time.Duration(secs) * time.Second
	}

	return &taskgraph.Task{
		Name:                   name,
		Cmd:                    ini.get(name, "cmd"),
		Depend:                 depend,
		CPU:                    cpu,
		Mem:                    mem,
		Retry:                  retry,
		Timeout:                timeout,
		MonitorResource:        monitorResource,
		MonitorTimeStep:        time.Duration(monitorStepSec) * time.Second,
		CheckResourceBeforeRun: checkResource,
	}, nil
}

func parseDepend(ini *iniFile, name string, nameSet map[string]bool) ([]string, error) {
	if !ini.has(name, "depend") {
		return nil, nil
	}
	raw := strings.TrimSpace(ini.get(name, "depend"))
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		dep := strings.TrimSpace(part)
		if dep == "" {
			continue
		}
		if !nameSet[dep] {
			return nil, &DependencyError{Task: name, Target: dep}
		}
		out = append(out, dep)
	}
	return out, nil
}

func requireInt(ini *iniFile, section, key string) (int, error) {
	if !ini.has(section, key) {
		return 0, &ConfigError{Section: section, Key: key, Reason: "required field is absent"}
	}
	return parseInt(ini.get(section, key), section, key)
}

func inheritedInt(ini *iniFile, section, fallbackSection, key string) (int, error) {
	if ini.has(section, key) {
		return parseInt(ini.get(section, key), section, key)
	}
	return requireInt(ini, fallbackSection, key)
}

func inheritedBool(ini *iniFile, section, fallbackSection, key string) (bool, error) {
	if ini.has(section, key) {
		return parseBool(ini.get(section, key), section, key)
	}
	if !ini.has(fallbackSection, key) {
		return false, &ConfigError{Section: fallbackSection, Key: key, Reason: "required field is absent"}
	}
	return parseBool(ini.get(fallbackSection, key), fallbackSection, key)
}

func optionalFloat(ini *iniFile, section, key string, def float64) (float64, error) {
	if !ini.has(section, key) {
		return def, nil
	}
	raw := ini.get(section, key)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &ConfigError{Section: section, Key: key, Reason: fmt.Sprintf("%q is not numeric", raw)}
	}
	return v, nil
}

func parseInt(raw, section, key string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ConfigError{Section: section, Key: key, Reason: fmt.Sprintf("%q is not numeric", raw)}
	}
	return v, nil
}

func parseBool(raw, section, key string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, &ConfigError{Section: section, Key: key, Reason: fmt.Sprintf("%q is not a boolean", raw)}
	}
	return v, nil
}
