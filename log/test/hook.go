package test

import (
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// NewHook installs a hook on the standard logger and returns a function that
// restores the hooks that were there before.
//
// Prefer handing a logrus.FieldLogger to the tested struct and using
// test.NewNullLogger; this is for code that still logs through the global
// logger.
func NewHook() (*test.Hook, func()) {
	oldHooks := logrus.LevelHooks{}
	for level, hooks := range logrus.StandardLogger().Hooks {
		oldHooks[level] = hooks
	}

	newHook := test.NewGlobal()
	return newHook, func() {
		logrus.StandardLogger().ReplaceHooks(oldHooks)
	}
}
