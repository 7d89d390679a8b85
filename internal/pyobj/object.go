package pyobj

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/types"
)

// Class is a Python class referenced by a pickle that has no dedicated Go
// decoder. Instances are created either by NEWOBJ or, for extension types
// with a __reduce__, by calling the class.
type Class struct {
	Module string
	Name   string
}

// PyNew implements NEWOBJ.
func (c *Class) PyNew(args ...interface{}) (interface{}, error) {
	return &Object{Class: c, Args: args}, nil
}

// Call implements REDUCE on the class itself.
func (c *Class) Call(args ...interface{}) (interface{}, error) {
	return &Object{Class: c, Args: args}, nil
}

// Object is an instance of a Class together with its constructor arguments
// and the state restored by BUILD.
type Object struct {
	Class *Class
	Args  []interface{}
	State interface{}
	dict  *types.Dict
}

// QualName returns "module.Name".
func (o *Object) QualName() string {
	return o.Class.Module + "." + o.Class.Name
}

// PySetState implements BUILD. A (dict, slots) pair keeps the dict part.
func (o *Object) PySetState(state interface{}) error {
	o.State = state
	switch s := state.(type) {
	case *types.Dict:
		o.dict = s
	case *types.Tuple:
		if s.Len() == 2 {
			if d, ok := s.Get(0).(*types.Dict); ok {
				o.dict = d
			}
		}
	}
	return nil
}

// Attr returns an instance attribute from the restored state.
func (o *Object) Attr(name string) (interface{}, bool) {
	if o.dict == nil {
		return nil, false
	}
	return o.dict.Get(name)
}

// MustAttr is Attr returning an error when the attribute is missing.
func (o *Object) MustAttr(name string) (interface{}, error) {
	v, ok := o.Attr(name)
	if !ok {
		return nil, fmt.Errorf("%s: missing attribute %q", o.QualName(), name)
	}
	return v, nil
}
