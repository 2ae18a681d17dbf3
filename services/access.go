package services

import (
	"home-services-server/models"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uint
	Role models.UserRole
}

func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) IsAdmin() bool    { return a.Role == models.RoleAdmin }
func (a Actor) IsProvider() bool { return a.Role == models.RoleProvider }

// Capability is one thing an actor may do to a booking.
type Capability uint16

const (
	CapRead Capability = 1 << iota
	CapCancel
	CapReschedule
	CapAssign
	CapSetStatus
	CapChat
	CapInvoice
	CapPay
)

// Capabilities is a set of Capability bits.
type Capabilities Capability

func (c Capabilities) Has(want Capability) bool {
	return Capability(c)&want == want
}

// BookingAccess is the single authorization predicate for bookings.
// Roles combine: an admin who also owns the booking gets both sets.
func BookingAccess(actor Actor, b *models.Booking) Capabilities {
	var caps Capability

	if b.UserID == actor.ID {
		caps |= CapRead | CapCancel | CapReschedule | CapChat | CapPay
	}
	if b.AssignedTo(actor.ID) {
		caps |= CapRead | CapSetStatus | CapChat | CapInvoice | CapPay
	}
	if actor.IsAdmin() {
		caps |= CapRead | CapAssign | CapSetStatus | CapInvoice | CapPay
	}

	return Capabilities(caps)
}
