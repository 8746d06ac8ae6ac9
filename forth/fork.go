package forth

// Fork freezes this VM's dictionary into a shared parent and builds a
// child VM. The caller's mutable dictionary is replaced with a fresh one
// chained to the frozen parent; the child gets its own fresh dictionary
// on the same chain, empty stacks, and the caller's builtin tables.
func (vm *VM[H]) Fork(params Params, host H) *VM[H] {
	params.withDefaults()
	mine, childDict := vm.Dict.Fork(vm.params.DictSize, params.DictSize)
	vm.Dict = mine

	child := New(params, childDict, host, nil)
	child.builtins = vm.builtins
	child.asyncBuiltins = vm.asyncBuiltins
	return child
}
