package mgo

import (
	"errors"
	"fmt"

	"github.com/globalsign/mgo"
	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/types"
)

type collection struct {
	*mgo.Collection
	log   logr.Logger
	clock clock.Clock
}

func (c *collection) copySession() *collection {
	db := c.Database
	return &collection{
		Collection: db.Session.Copy().DB(db.Name).C(c.Name),
		log:        c.log,
		clock:      c.clock,
	}
}

func (c *collection) closeSession() {
	c.Database.Session.Close()
}

// CollectionOption configures a mongodb backed component
type CollectionOption func(*collection)

// WithLogger sets the logger
func WithLogger(l logr.Logger) CollectionOption {
	return func(c *collection) {
		c.log = l
	}
}

// WithClock sets the clock stamping notifications
func WithClock(clk clock.Clock) CollectionOption {
	return func(c *collection) {
		c.clock = clk
	}
}

func parseMgoError(e error) error {
	switch {
	case e == nil:
		return nil
	case errors.Is(e, mgo.ErrNotFound):
		return fmt.Errorf("%w: %v", types.ErrNotFound, e)
	case mgo.IsDup(e):
		return fmt.Errorf("%w: %v", types.ErrAlreadyExists, e)
	}
	return e
}
