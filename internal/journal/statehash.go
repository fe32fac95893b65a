package journal

import "aura/internal/auracrypto"

// snapshotForm mirrors AccountState's exported fields for canonical
// hashing; AccountState itself isn't marshaled directly because its
// embedded mutex would need to stay excluded even if the struct shape
// changes later.
type snapshotForm struct {
	AccountID           string
	GroupPublicKey      []byte
	Threshold           int
	Devices             map[string]*Device
	Guardians           map[string]*Guardian
	RemovedDevices      map[string]struct{}
	RemovedGuardians    map[string]struct{}
	LamportClock        uint64
	LastEventHash       []byte
	ActiveOperationLock string
	Sessions            map[string]*Session
	CommitmentRoots     map[string]*CommitmentRoot
}

func stateHash(s *AccountState) ([32]byte, error) {
	form := snapshotForm{
		AccountID:           s.AccountID,
		GroupPublicKey:      s.GroupPublicKey,
		Threshold:           s.Threshold,
		Devices:             s.Devices,
		Guardians:           s.Guardians,
		RemovedDevices:      s.RemovedDevices,
		RemovedGuardians:    s.RemovedGuardians,
		LamportClock:        s.LamportClock,
		LastEventHash:       s.LastEventHash,
		ActiveOperationLock: s.ActiveOperationLock,
		Sessions:            s.Sessions,
		CommitmentRoots:     s.CommitmentRoots,
	}
	data, err := auracrypto.CanonicalMarshal(form)
	if err != nil {
		return [32]byte{}, err
	}
	return auracrypto.Hash(data), nil
}
