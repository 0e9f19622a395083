// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// JSClass is a Go struct type registered as an engine class, see
// [Runtime.NewClass].
type JSClass struct {
	rt        *Runtime
	id        uint32
	name      string
	typ       reflect.Type
	fields    []*classField
	construct reflect.Value
	sig       *signature
	ctor      *goja.Object
	proto     *goja.Object
}

// classField is an exposed attribute.
type classField struct {
	name  string
	index []int
	typ   reflect.Type
}

// NewClass registers a Go struct type as an engine class. constructor is a
// func returning *T, or (*T, error), where T is a struct type; its
// parameters are the class constructor arguments, converted like function
// arguments. The class is named after T.
//
// Each attr exposes a field of T as an accessor property on instances. A
// field matches an attr by its `js:"name"` tag, else by case-insensitive
// field name. Fields not listed are invisible to the engine. Instances share
// storage with the host: assignments from script are visible through the
// *T, and vice versa.
//
// Registering a type again returns the existing binding.
func (r *Runtime) NewClass(constructor any, attrs ...string) (*JSClass, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}
	rv := reflect.ValueOf(constructor)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("jsbridge: class constructor must be a func, got %T", constructor)
	}
	ft := rv.Type()
	if ft.NumOut() == 0 || ft.Out(0).Kind() != reflect.Pointer || ft.Out(0).Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("jsbridge: class constructor must return a pointer to a struct, got %s", ft)
	}
	typ := ft.Out(0)
	if class, ok := r.classes[typ]; ok {
		return class, nil
	}
	sig, err := newSignature(ft)
	if err != nil {
		return nil, fmt.Errorf("jsbridge: %w", err)
	}

	class := &JSClass{
		rt:        r,
		name:      typ.Elem().Name(),
		typ:       typ,
		construct: rv,
		sig:       sig,
	}
	if class.name == "" {
		return nil, fmt.Errorf("jsbridge: class type %s must be named", typ)
	}
	seen := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		if seen[attr] {
			continue
		}
		seen[attr] = true
		field, err := findField(typ.Elem(), attr)
		if err != nil {
			return nil, fmt.Errorf("jsbridge: class %s: %w", class.name, err)
		}
		class.fields = append(class.fields, field)
	}

	if err := class.build(); err != nil {
		return nil, fmt.Errorf("jsbridge: class %s: %w", class.name, err)
	}

	r.nextClassID++
	class.id = r.nextClassID
	r.classes[typ] = class
	r.classIDs[class.id] = class

	r.logger.Debug().
		Str("class", class.name).
		Uint64("id", uint64(class.id)).
		Int("attrs", len(class.fields)).
		Log("jsbridge: class registered")

	return class, nil
}

// findField resolves attr to an exported field of t.
func findField(t reflect.Type, attr string) (*classField, error) {
	fields := reflect.VisibleFields(t)
	for _, f := range fields {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("js"), ","); tag == attr {
			return &classField{name: attr, index: f.Index, typ: f.Type}, nil
		}
	}
	for _, f := range fields {
		if !f.IsExported() || f.Anonymous || f.Tag.Get("js") == "-" {
			continue
		}
		if strings.EqualFold(f.Name, attr) {
			return &classField{name: attr, index: f.Index, typ: f.Type}, nil
		}
	}
	return nil, fmt.Errorf("unknown attribute %q", attr)
}

// build creates the constructor and the prototype accessors.
func (k *JSClass) build() error {
	r := k.rt
	init := r.vm.ToValue(k.init)
	ctor, err := r.classFactory(goja.Undefined(), r.vm.ToValue(k.name), init)
	if err != nil {
		return err
	}
	var ok bool
	if k.ctor, ok = ctor.(*goja.Object); !ok {
		return errors.New("class factory did not return a constructor")
	}
	if k.proto, ok = k.ctor.Get("prototype").(*goja.Object); !ok {
		return errors.New("constructor has no prototype")
	}
	r.nameFunction(k.ctor, k.name, k.sig.arity())

	for _, field := range k.fields {
		getter := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return k.get(call.This, field)
		})
		setter := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			k.set(call.This, field, call.Argument(0))
			return goja.Undefined()
		})
		if err := k.proto.DefineAccessorProperty(field.name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return k.proto.DefineDataPropertySymbol(goja.SymToStringTag, r.vm.ToValue(k.name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// Name returns the class name, i.e. the name of the Go struct type.
func (k *JSClass) Name() string { return k.name }

// ID returns the class id, unique within the runtime and never reused.
func (k *JSClass) ID() uint32 { return k.id }

// Type returns the host type, a pointer to a struct type.
func (k *JSClass) Type() reflect.Type { return k.typ }

// Runtime returns the runtime the class is registered with.
func (k *JSClass) Runtime() *Runtime { return k.rt }

// Attrs returns the exposed attribute names, in registration order.
func (k *JSClass) Attrs() []string {
	attrs := make([]string, len(k.fields))
	for i, f := range k.fields {
		attrs[i] = f.name
	}
	return attrs
}

// init is the constructor trampoline, called by the class constructor with
// the new object and the argument array. Nothing is bound to the object
// until the host constructor has succeeded, and the object is discarded if
// init throws.
func (k *JSClass) init(call goja.FunctionCall) goja.Value {
	r := k.rt
	defer r.enterHost(k.name)()

	this, ok := call.Argument(0).(*goja.Object)
	if !ok {
		panic(r.vm.NewTypeError("%s: invalid receiver", k.name))
	}
	argv, ok := call.Argument(1).(*goja.Object)
	if !ok {
		panic(r.vm.NewTypeError("%s: invalid arguments", k.name))
	}
	args := make([]goja.Value, argv.Get("length").ToInteger())
	for i := range args {
		args[i] = argv.Get(strconv.Itoa(i))
	}

	c := r.current()
	in := r.hostArgs(c, k.sig, k.name, args)
	out, err := invoke(k.construct, in)
	if err == nil && k.sig.hasErr {
		err, _ = out[len(out)-1].Interface().(error)
	}
	if err != nil {
		r.throw(err)
	}
	host := out[0]
	if host.IsNil() {
		panic(r.vm.NewTypeError("%s: constructor returned nil", k.name))
	}
	k.bind(this, host.Interface())
	return goja.Undefined()
}

func (k *JSClass) bind(obj *goja.Object, host any) {
	k.rt.setHidden(obj, k.rt.symbols.instance, &hostRef{value: host, class: k})
	k.rt.instances.bind(host, obj)
}

// instance returns the engine object bound to host, creating one without
// calling the constructor if host has not crossed before.
func (k *JSClass) instance(host any) goja.Value {
	if obj := k.rt.instances.lookup(host); obj != nil {
		return obj
	}
	obj := k.rt.vm.CreateObject(k.proto)
	k.bind(obj, host)
	return obj
}

// receiver returns the host value bound to this, throwing a TypeError if it
// is not an instance of the class.
func (k *JSClass) receiver(this goja.Value, field *classField) reflect.Value {
	if obj, ok := this.(*goja.Object); ok {
		if ref := k.rt.hidden(obj, k.rt.symbols.instance); ref != nil && ref.class == k {
			return reflect.ValueOf(ref.value).Elem()
		}
	}
	panic(k.rt.vm.NewTypeError("%s.%s: receiver is not a %s instance", k.name, field.name, k.name))
}

func (k *JSClass) get(this goja.Value, field *classField) goja.Value {
	r := k.rt
	defer r.enterHost(k.name + "." + field.name)()
	v, err := r.current().value(k.receiver(this, field).FieldByIndex(field.index).Interface())
	if err != nil {
		r.throw(err)
	}
	return v
}

func (k *JSClass) set(this goja.Value, field *classField, value goja.Value) {
	r := k.rt
	defer r.enterHost(k.name + "." + field.name)()
	target := k.receiver(this, field).FieldByIndex(field.index)
	c := r.current()
	var host any
	if field.typ != typeGojaValue {
		var err error
		if host, err = c.export(value); err != nil {
			r.throw(err)
		}
	}
	v, err := c.coerce(host, value, field.typ)
	if err != nil {
		r.throw(&ConversionError{Value: host, Err: err, Detail: k.name + "." + field.name})
	}
	target.Set(v)
}
