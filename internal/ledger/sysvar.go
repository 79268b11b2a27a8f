package ledger

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Well-known addresses.
var (
	SystemProgramID = Pubkey{}
	SysvarOwnerID   = MustParsePubkey("Sysvar1111111111111111111111111111111111111")
	RentSysvarID    = MustParsePubkey("SysvarRent111111111111111111111111111111111")
	ClockSysvarID   = MustParsePubkey("SysvarC1ock11111111111111111111111111111111")
	NativeLoaderID  = MustParsePubkey("NativeLoader1111111111111111111111111111111")
)

// AccountStorageOverhead is charged on top of the data length when computing
// rent.
const AccountStorageOverhead = 128

const (
	rentLen  = 17
	clockLen = 40
)

// Rent holds the ledger's rent parameters.
type Rent struct {
	LamportsPerByteYear uint64  `json:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `json:"exemption_threshold"`
	BurnPercent         uint8   `json:"burn_percent"`
}

// DefaultRent mirrors the parameters of public clusters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
		BurnPercent:         50,
	}
}

// MinimumBalance is the smallest balance that makes an account of dataLen
// bytes rent-exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(AccountStorageOverhead + dataLen)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports covers rent exemption for dataLen bytes.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

// Encode returns the sysvar account data.
func (r Rent) Encode() []byte {
	b := make([]byte, rentLen)
	binary.LittleEndian.PutUint64(b[0:8], r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(r.ExemptionThreshold))
	b[16] = r.BurnPercent
	return b
}

// RentFromAccount decodes the rent sysvar. The account must be the rent
// sysvar itself.
func RentFromAccount(info *AccountInfo) (Rent, error) {
	var r Rent
	if info.Key != RentSysvarID {
		return r, fmt.Errorf("%w: %s is not the rent sysvar", ErrInvalidArgument, info.Key)
	}
	if len(info.Data) < rentLen {
		return r, ErrInvalidAccountData
	}
	r.LamportsPerByteYear = binary.LittleEndian.Uint64(info.Data[0:8])
	r.ExemptionThreshold = math.Float64frombits(binary.LittleEndian.Uint64(info.Data[8:16]))
	r.BurnPercent = info.Data[16]
	return r, nil
}

// Clock is the ledger's notion of time, supplied per transaction.
type Clock struct {
	Slot                uint64 `json:"slot"`
	EpochStartTimestamp int64  `json:"epoch_start_timestamp"`
	Epoch               uint64 `json:"epoch"`
	LeaderScheduleEpoch uint64 `json:"leader_schedule_epoch"`
	UnixTimestamp       int64  `json:"unix_timestamp"`
}

// Encode returns the sysvar account data.
func (c Clock) Encode() []byte {
	b := make([]byte, clockLen)
	binary.LittleEndian.PutUint64(b[0:8], c.Slot)
	binary.LittleEndian.PutUint64(b[8:16], uint64(c.EpochStartTimestamp))
	binary.LittleEndian.PutUint64(b[16:24], c.Epoch)
	binary.LittleEndian.PutUint64(b[24:32], c.LeaderScheduleEpoch)
	binary.LittleEndian.PutUint64(b[32:40], uint64(c.UnixTimestamp))
	return b
}

// ClockFromAccount decodes the clock sysvar. The account must be the clock
// sysvar itself.
func ClockFromAccount(info *AccountInfo) (Clock, error) {
	var c Clock
	if info.Key != ClockSysvarID {
		return c, fmt.Errorf("%w: %s is not the clock sysvar", ErrInvalidArgument, info.Key)
	}
	if len(info.Data) < clockLen {
		return c, ErrInvalidAccountData
	}
	d := info.Data
	c.Slot = binary.LittleEndian.Uint64(d[0:8])
	c.EpochStartTimestamp = int64(binary.LittleEndian.Uint64(d[8:16]))
	c.Epoch = binary.LittleEndian.Uint64(d[16:24])
	c.LeaderScheduleEpoch = binary.LittleEndian.Uint64(d[24:32])
	c.UnixTimestamp = int64(binary.LittleEndian.Uint64(d[32:40]))
	return c, nil
}
