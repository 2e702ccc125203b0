package svcaccess

import "github.com/supremind/svcaccess/types"

// SuperUser can do any action on anything
func SuperUser(usernames ...string) types.PresetPolicy {
	supers := make(map[string]bool, len(usernames))
	for _, name := range usernames {
		supers[name] = true
	}

	return func(user *types.User, _ types.Action, _ *types.EntityRef) bool {
		return supers[user.Username]
	}
}

// Staff members could do act on anything
func Staff(act types.Action) types.PresetPolicy {
	return func(user *types.User, ra types.Action, _ *types.EntityRef) bool {
		return user.IsStaff && act.Includes(ra)
	}
}

// PublicShared specify that everybody could do act on target
func PublicShared(target types.EntityRef, act types.Action) types.PresetPolicy {
	return func(_ *types.User, ra types.Action, rt *types.EntityRef) bool {
		return rt != nil && *rt == target && act.Includes(ra)
	}
}
