package ledger

// AccountMeta describes one positional account of an instruction.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// NewMeta returns a writable meta.
func NewMeta(pk Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: signer, IsWritable: true}
}

// NewReadonlyMeta returns a read-only meta.
func NewReadonlyMeta(pk Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: signer}
}

// Instruction is a call into one program: the program address, the ordered
// account list and opaque instruction bytes.
type Instruction struct {
	ProgramID Pubkey        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// Program is an on-ledger program. Process runs to completion or returns an
// error, in which case the runtime discards every change of the enclosing
// transaction.
type Program interface {
	Process(ic InvokeContext, programID Pubkey, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ic InvokeContext, programID Pubkey, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ic InvokeContext, programID Pubkey, accounts []*AccountInfo, data []byte) error {
	return f(ic, programID, accounts, data)
}

// InvokeContext is what the runtime exposes to a running program.
type InvokeContext interface {
	// Invoke runs ix synchronously in another program. accounts must contain
	// every account ix references, including the target program.
	Invoke(ix Instruction, accounts []*AccountInfo) error

	// InvokeSigned is Invoke with additional signers: each seed set is
	// turned into a derived address of the calling program, which then
	// counts as a signer of ix.
	InvokeSigned(ix Instruction, accounts []*AccountInfo, signerSeeds [][][]byte) error

	// Log appends a line to the transaction's program log.
	Log(format string, args ...any)
}
