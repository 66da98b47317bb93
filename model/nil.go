package model

// NilSchema is the attribute schema of a type that declares none: any object.
func NilSchema() []byte {
	return []byte(`
		{
			"type":"object",
			"properties":{},
			"additionalProperties": true
		}`,
	)
}

// NilExample is the attribute example of a type that declares none.
func NilExample() []byte {
	return []byte(`{}`)
}
